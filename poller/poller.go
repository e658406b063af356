package poller

import (
	"errors"
	"time"
)

// Interest 表示 fd 关注的就绪类型集合。
type Interest uint8

const (
	Accept Interest = 1 << iota
	Read
	Write
)

func (in Interest) String() string {
	switch in {
	case 0:
		return "none"
	case Accept:
		return "accept"
	case Read:
		return "read"
	case Write:
		return "write"
	case Read | Write:
		return "read|write"
	}
	return "invalid"
}

// valid：非空，且 Accept 不与 Read/Write 混用。
func (in Interest) valid() bool {
	if in == 0 || in&^(Accept|Read|Write) != 0 {
		return false
	}
	return in == Accept || in&Accept == 0
}

// Event 为一次就绪通知，Ready 只包含注册过的关注位。
type Event struct {
	FD    int
	Ready Interest
}

var (
	ErrRegistration         = errors.New("poller: registration failed")
	ErrInvalidInterest      = errors.New("poller: invalid interest")
	ErrClosed               = errors.New("poller: closed")
	ErrPlatformNotSupported = errors.New("poller: platform not supported (requires epoll or kqueue)")
)

// Poller 是就绪多路复用器。
// 除 Wake 外，所有方法只能在事件循环所在 goroutine 中调用。
type Poller interface {
	// Register 新增或替换 fd 的关注集合。
	Register(fd int, in Interest) error
	// Deregister 移除注册；对未注册的 fd 为空操作。
	Deregister(fd int) error
	// Wait 阻塞直到有事件、超时或被 Wake；timeout < 0 表示无限等待。
	Wait(events []Event, timeout time.Duration) (int, error)
	Wake() error
	Close() error
}

// readyFor 将内核报告的可读/可写/异常映射到注册的关注集合上。
// 异常按注册的关注位上报，由处理方在读写时发现错误。
func readyFor(registered Interest, readable, writable, failed bool) Interest {
	var r Interest
	if readable || failed {
		r |= registered & (Accept | Read)
	}
	if writable || failed {
		r |= registered & Write
	}
	return r
}

func timeoutMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	ms := d / time.Millisecond
	if d%time.Millisecond != 0 {
		ms++
	}
	return int(ms)
}
