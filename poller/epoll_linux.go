//go:build linux

package poller

import (
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sys/unix"
)

// 水平触发：每个事件只做一次读/写也不会丢通知。
type epollPoller struct {
	efd    int
	wfd    int // eventfd for wakeup
	regs   map[int]Interest
	evbuf  []unix.EpollEvent
	closed bool
}

func New() (Poller, error) {
	efd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(efd)
		return nil, err
	}
	// 注册 wakeup fd
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wfd)}
	if err := unix.EpollCtl(efd, unix.EPOLL_CTL_ADD, wfd, ev); err != nil {
		unix.Close(wfd)
		unix.Close(efd)
		return nil, err
	}
	return &epollPoller{efd: efd, wfd: wfd, regs: make(map[int]Interest)}, nil
}

// EPOLLRDHUP 只随读关注注册，否则写注册在对端半关闭后持续就绪。
// EPOLLERR / EPOLLHUP 由内核总是上报。
func epollFlags(in Interest) uint32 {
	var flag uint32
	if in&(Accept|Read) != 0 {
		flag |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if in&Write != 0 {
		flag |= unix.EPOLLOUT
	}
	return flag
}

func (p *epollPoller) Register(fd int, in Interest) error {
	if !in.valid() {
		return fmt.Errorf("%w: %v", ErrInvalidInterest, in)
	}
	if p.closed {
		return ErrClosed
	}
	op := unix.EPOLL_CTL_ADD
	if _, ok := p.regs[fd]; ok {
		op = unix.EPOLL_CTL_MOD
	}
	ev := &unix.EpollEvent{Events: epollFlags(in), Fd: int32(fd)}
	if err := unix.EpollCtl(p.efd, op, fd, ev); err != nil {
		return fmt.Errorf("%w: fd=%d interest=%v: %v", ErrRegistration, fd, in, err)
	}
	p.regs[fd] = in
	return nil
}

func (p *epollPoller) Deregister(fd int) error {
	if _, ok := p.regs[fd]; !ok || p.closed {
		return nil
	}
	delete(p.regs, fd)
	err := unix.EpollCtl(p.efd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT || err == unix.EBADF {
		// fd 已被关闭，内核侧注册随之消失
		return nil
	}
	return err
}

func (p *epollPoller) Wait(events []Event, timeout time.Duration) (int, error) {
	defer runtime.KeepAlive(p)
	if p.closed {
		return 0, ErrClosed
	}
	if len(events) == 0 {
		return 0, nil
	}
	if cap(p.evbuf) < len(events) {
		p.evbuf = make([]unix.EpollEvent, len(events))
	}
	raw := p.evbuf[:len(events)]
	n, err := unix.EpollWait(p.efd, raw, timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	out := 0
	for i := 0; i < n; i++ {
		ev := raw[i]
		fd := int(ev.Fd)
		if fd == p.wfd {
			p.drainWake()
			continue
		}
		reg, ok := p.regs[fd]
		if !ok {
			continue
		}
		ready := readyFor(reg,
			ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
			ev.Events&unix.EPOLLOUT != 0,
			ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0)
		if ready == 0 {
			continue
		}
		events[out] = Event{FD: fd, Ready: ready}
		out++
	}
	return out, nil
}

func (p *epollPoller) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wfd, buf[:]); err != nil {
			return
		}
	}
}

func (p *epollPoller) Wake() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(p.wfd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *epollPoller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.regs = nil
	unix.Close(p.wfd)
	return unix.Close(p.efd)
}
