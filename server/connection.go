package server

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/legamerdc/gnio/protocol"
)

// Phase 为连接状态：Reading -> Writing -> Closed，单向不回退。
type Phase uint8

const (
	Reading Phase = iota
	Writing
	Closed
)

func (p Phase) String() string {
	switch p {
	case Reading:
		return "reading"
	case Writing:
		return "writing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// socket 为非阻塞 socket 的最小抽象。
// Read 在对端关闭时返回 io.EOF；Read/Write 无进展时返回 errWouldBlock。
type socket interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

type connection struct {
	fd    int
	id    uint64
	epoch uint64 // 接受该连接时的循环轮次
	sock  socket
	phase Phase
	err   error // 进入 Closed 的原因，nil 表示正常写完

	pool  *bytebufferpool.Pool
	rbuf  *bytebufferpool.ByteBuffer
	wbuf  *bytebufferpool.ByteBuffer
	wpos  int // 写游标
	chunk int
	limit int

	lastActive time.Time
	released   bool
}

func newConnection(fd int, sock socket, pool *bytebufferpool.Pool, chunk, limit int) *connection {
	c := &connection{fd: fd, sock: sock, phase: Reading, pool: pool, chunk: chunk, limit: limit}
	c.rbuf = pool.Get()
	c.rbuf.Reset()
	return c
}

func (c *connection) fail(err error) {
	c.phase = Closed
	c.err = err
}

// onReadable 执行一次非阻塞读并交给 responder，返回读入字节数。
func (c *connection) onReadable(r protocol.Responder) int {
	if c.phase != Reading {
		return 0
	}
	b := slices.Grow(c.rbuf.B, c.chunk)
	n, err := c.sock.Read(b[len(b) : len(b)+c.chunk])
	if n > 0 {
		c.rbuf.B = b[:len(b)+n]
	}
	if n <= 0 {
		switch {
		case err == nil, errors.Is(err, errWouldBlock):
		case errors.Is(err, io.EOF):
			c.fail(ErrPeerClosed)
		default:
			c.fail(fmt.Errorf("%w: %w", errRead, err))
		}
		return 0
	}
	if c.rbuf.Len() > c.limit {
		c.fail(fmt.Errorf("%w: %d > %d bytes", ErrRequestTooLarge, c.rbuf.Len(), c.limit))
		return n
	}
	resp, complete, err := r.Respond(c.rbuf.B)
	switch {
	case err != nil:
		c.fail(fmt.Errorf("%w: %w", errResponder, err))
	case !complete:
	case len(resp) == 0:
		c.fail(nil)
	default:
		// 响应复制进本连接私有的写缓冲，读缓冲不再需要
		c.wbuf = c.pool.Get()
		c.wbuf.Reset()
		_, _ = c.wbuf.Write(resp)
		c.pool.Put(c.rbuf)
		c.rbuf = nil
		c.wpos = 0
		c.phase = Writing
	}
	return n
}

// onWritable 从游标处写出尽可能多的字节，返回本次写出字节数。
func (c *connection) onWritable() int {
	if c.phase != Writing {
		return 0
	}
	written := 0
	for c.wpos < c.wbuf.Len() {
		n, err := c.sock.Write(c.wbuf.B[c.wpos:])
		if n > 0 {
			c.wpos += n
			written += n
		}
		if err != nil {
			if errors.Is(err, errWouldBlock) {
				break
			}
			c.fail(fmt.Errorf("%w: %w", errWrite, err))
			return written
		}
		if n == 0 {
			break
		}
	}
	if c.wpos >= c.wbuf.Len() {
		c.fail(nil)
	}
	return written
}

func (c *connection) pending() int {
	if c.wbuf == nil {
		return 0
	}
	return c.wbuf.Len() - c.wpos
}

// release 关闭 socket 并归还缓冲；可重复调用，socket 只关闭一次。
func (c *connection) release() error {
	if c.released {
		return nil
	}
	c.released = true
	c.phase = Closed
	err := c.sock.Close()
	if c.rbuf != nil {
		c.pool.Put(c.rbuf)
		c.rbuf = nil
	}
	if c.wbuf != nil {
		c.pool.Put(c.wbuf)
		c.wbuf = nil
	}
	return err
}
