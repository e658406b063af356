//go:build darwin

package poller

import (
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sys/unix"
)

type kqueuePoller struct {
	kq     int
	wfd    int // 写端，用于唤醒
	rfd    int // 读端，注册到 kqueue
	regs   map[int]Interest
	evbuf  []unix.Kevent_t
	closed bool
}

func New() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	// 使用管道作为唤醒
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		unix.Close(kq)
		return nil, err
	}
	rfd, wfd := p[0], p[1]
	_ = unix.SetNonblock(rfd, true)
	_ = unix.SetNonblock(wfd, true)
	unix.CloseOnExec(rfd)
	unix.CloseOnExec(wfd)
	kev := unix.Kevent_t{Ident: uint64(rfd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD}
	if _, err := unix.Kevent(kq, []unix.Kevent_t{kev}, nil, nil); err != nil {
		unix.Close(rfd)
		unix.Close(wfd)
		unix.Close(kq)
		return nil, err
	}
	return &kqueuePoller{kq: kq, wfd: wfd, rfd: rfd, regs: make(map[int]Interest)}, nil
}

func wantsRead(in Interest) bool  { return in&(Accept|Read) != 0 }
func wantsWrite(in Interest) bool { return in&Write != 0 }

// changes 只对有变化的过滤器生成 EV_ADD / EV_DELETE，避免删除不存在的过滤器报错。
func changes(fd int, old, next Interest) []unix.Kevent_t {
	var ch []unix.Kevent_t
	add := func(filter int16, flags uint16) {
		ch = append(ch, unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: flags})
	}
	switch {
	case wantsRead(next) && !wantsRead(old):
		add(unix.EVFILT_READ, unix.EV_ADD)
	case !wantsRead(next) && wantsRead(old):
		add(unix.EVFILT_READ, unix.EV_DELETE)
	}
	switch {
	case wantsWrite(next) && !wantsWrite(old):
		add(unix.EVFILT_WRITE, unix.EV_ADD)
	case !wantsWrite(next) && wantsWrite(old):
		add(unix.EVFILT_WRITE, unix.EV_DELETE)
	}
	return ch
}

func (p *kqueuePoller) Register(fd int, in Interest) error {
	if !in.valid() {
		return fmt.Errorf("%w: %v", ErrInvalidInterest, in)
	}
	if p.closed {
		return ErrClosed
	}
	ch := changes(fd, p.regs[fd], in)
	if len(ch) > 0 {
		if _, err := unix.Kevent(p.kq, ch, nil, nil); err != nil {
			return fmt.Errorf("%w: fd=%d interest=%v: %v", ErrRegistration, fd, in, err)
		}
	}
	p.regs[fd] = in
	return nil
}

func (p *kqueuePoller) Deregister(fd int) error {
	old, ok := p.regs[fd]
	if !ok || p.closed {
		return nil
	}
	delete(p.regs, fd)
	_, err := unix.Kevent(p.kq, changes(fd, old, 0), nil, nil)
	if err == unix.ENOENT || err == unix.EBADF {
		return nil
	}
	return err
}

func (p *kqueuePoller) Wait(events []Event, timeout time.Duration) (int, error) {
	defer runtime.KeepAlive(p)
	if p.closed {
		return 0, ErrClosed
	}
	if len(events) == 0 {
		return 0, nil
	}
	if cap(p.evbuf) < len(events) {
		p.evbuf = make([]unix.Kevent_t, len(events))
	}
	raw := p.evbuf[:len(events)]
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, raw, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	out := 0
	for i := 0; i < n; i++ {
		ev := raw[i]
		fd := int(ev.Ident)
		if fd == p.rfd {
			p.drainWake()
			continue
		}
		reg, ok := p.regs[fd]
		if !ok {
			continue
		}
		failed := ev.Flags&unix.EV_ERROR != 0
		ready := readyFor(reg, ev.Filter == unix.EVFILT_READ, ev.Filter == unix.EVFILT_WRITE, failed)
		if ready == 0 {
			continue
		}
		events[out] = Event{FD: fd, Ready: ready}
		out++
	}
	return out, nil
}

func (p *kqueuePoller) drainWake() {
	buf := make([]byte, 16)
	for {
		if _, err := unix.Read(p.rfd, buf); err != nil {
			return
		}
	}
}

func (p *kqueuePoller) Wake() error {
	var b [1]byte
	b[0] = 1
	_, err := unix.Write(p.wfd, b[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *kqueuePoller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.regs = nil
	unix.Close(p.rfd)
	unix.Close(p.wfd)
	return unix.Close(p.kq)
}
