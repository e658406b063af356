package server

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/legamerdc/gnio/poller"
)

type readResult struct {
	data []byte
	err  error
}

// fakeSocket 按脚本返回读结果；每个可写事件最多接受 budget 字节。
type fakeSocket struct {
	reads    []readResult
	budget   int
	writeErr error
	written  bytes.Buffer
	writes   int
	closes   int
}

func (s *fakeSocket) Read(p []byte) (int, error) {
	if len(s.reads) == 0 {
		return 0, errWouldBlock
	}
	r := s.reads[0]
	s.reads = s.reads[1:]
	if r.err != nil {
		return 0, r.err
	}
	n := copy(p, r.data)
	if n < len(r.data) {
		// 未读完的部分留给下一次
		s.reads = append([]readResult{{data: r.data[n:]}}, s.reads...)
	}
	return n, nil
}

func (s *fakeSocket) Write(p []byte) (int, error) {
	s.writes++
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	if s.budget <= 0 {
		return 0, errWouldBlock
	}
	n := min(len(p), s.budget)
	s.budget -= n
	s.written.Write(p[:n])
	return n, nil
}

func (s *fakeSocket) Close() error {
	s.closes++
	return nil
}

func eof() readResult { return readResult{err: io.EOF} }

type pollCall struct {
	op string
	fd int
	in poller.Interest
}

// fakePoller 记录注册调用，Wait 不会被调用。
type fakePoller struct {
	regs        map[int]poller.Interest
	calls       []pollCall
	registerErr error
}

func newFakePoller() *fakePoller { return &fakePoller{regs: make(map[int]poller.Interest)} }

func (p *fakePoller) Register(fd int, in poller.Interest) error {
	p.calls = append(p.calls, pollCall{"register", fd, in})
	if p.registerErr != nil {
		return p.registerErr
	}
	p.regs[fd] = in
	return nil
}

func (p *fakePoller) Deregister(fd int) error {
	p.calls = append(p.calls, pollCall{"deregister", fd, 0})
	delete(p.regs, fd)
	return nil
}

func (p *fakePoller) Wait([]poller.Event, time.Duration) (int, error) { return 0, nil }
func (p *fakePoller) Wake() error { return nil }
func (p *fakePoller) Close() error { return nil }

const testListenerFD = 3

// newLoopServer 构造不绑定端口的 Server，用于直接驱动 dispatch。
func newLoopServer(t *testing.T, mutate func(*Config)) (*Server, *fakePoller) {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	cfg.normalize()
	m, err := newMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	fp := newFakePoller()
	fp.regs[testListenerFD] = poller.Accept
	s := &Server{
		cfg:   cfg,
		log:   zap.NewNop(),
		m:     m,
		pl:    fp,
		lfd:   testListenerFD,
		conns: make(map[int]*connection),
		now:   time.Now(),
	}
	s.acceptBackoff = newAcceptBackoff(&cfg)
	return s, fp
}

// addConn 模拟一次已完成的 accept，连接属于上一轮。
func addConn(s *Server, fp *fakePoller, fd int, sock *fakeSocket) *connection {
	c := newConnection(fd, sock, &s.pool, s.cfg.ReadBufferSize, s.cfg.MaxRequestSize)
	s.nextID++
	c.id = s.nextID
	c.epoch = s.epoch
	c.lastActive = s.now
	s.conns[fd] = c
	s.m.open.Inc()
	fp.regs[fd] = poller.Read
	return c
}
