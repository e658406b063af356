package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	"github.com/legamerdc/gnio/poller"
)

const (
	stateIdle int32 = iota
	stateRunning
	stateClosed
)

// Server 为单 goroutine 的 reactor：一个 poller、一个监听 fd、全部连接。
// 连接表与 poller 注册只在 Serve 所在 goroutine 中访问，不加锁。
type Server struct {
	cfg  Config
	log  *zap.Logger
	m    *metrics
	pl   poller.Poller
	lfd  int
	addr net.Addr

	conns  map[int]*connection
	pool   bytebufferpool.Pool
	epoch  uint64
	nextID uint64
	now    time.Time

	acceptBackoff *backoff.ExponentialBackOff
	acceptResume  time.Time // 非零表示 accept 暂停到该时刻

	mu       sync.Mutex // Wake 与 poller 关闭互斥
	plClosed bool
	state    atomic.Int32
	stopping atomic.Bool
}

// New 绑定监听地址并创建 poller，不启动事件循环。
func New(cfg Config) (*Server, error) {
	cfg.normalize()
	lfd, addr, err := openListener(&cfg)
	if err != nil {
		return nil, err
	}
	pl, err := poller.New()
	if err != nil {
		closeFD(lfd)
		return nil, err
	}
	if err := pl.Register(lfd, poller.Accept); err != nil {
		pl.Close()
		closeFD(lfd)
		return nil, err
	}
	// 指标最后注册：绑定失败重试时不会重复注册
	m, err := newMetrics(cfg.Registerer)
	if err != nil {
		pl.Close()
		closeFD(lfd)
		return nil, err
	}
	return &Server{
		cfg:           cfg,
		log:           cfg.Logger,
		m:             m,
		pl:            pl,
		lfd:           lfd,
		addr:          addr,
		conns:         make(map[int]*connection),
		acceptBackoff: newAcceptBackoff(&cfg),
	}, nil
}

func newAcceptBackoff(cfg *Config) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.AcceptBackoffMin
	bo.MaxInterval = cfg.AcceptBackoffMax
	bo.MaxElapsedTime = 0 // 不放弃
	bo.Reset()
	return bo
}

// Addr 返回实际监听地址
func (s *Server) Addr() net.Addr { return s.addr }

// Ready 报告事件循环是否正在服务
func (s *Server) Ready() bool {
	return s.state.Load() == stateRunning && !s.stopping.Load()
}

// Serve 在当前 goroutine 运行事件循环，直到 Stop、ctx 取消或 poller 不可用。
func (s *Server) Serve(ctx context.Context) error {
	if !s.state.CompareAndSwap(stateIdle, stateRunning) {
		if s.state.Load() == stateRunning {
			return ErrServerRunning
		}
		return ErrServerClosed
	}
	defer s.shutdown()
	stop := context.AfterFunc(ctx, func() { _ = s.Stop() })
	defer stop()

	s.log.Info("serving", zap.Stringer("addr", s.addr))
	events := make([]poller.Event, s.cfg.MaxEvents)
	for !s.stopping.Load() {
		s.now = time.Now()
		s.resumeAccept()
		n, err := s.pl.Wait(events, s.waitTimeout())
		if err != nil {
			s.log.Error("poller wait failed", zap.Error(err))
			return fmt.Errorf("%w: %w", ErrLoopFatal, err)
		}
		s.m.iterations.Inc()
		s.epoch++
		s.now = time.Now()
		for _, ev := range events[:n] {
			s.dispatch(ev)
		}
		if s.cfg.IdleTimeout > 0 {
			s.sweepIdle()
		}
	}
	return nil
}

// Stop 可在任意 goroutine 调用；未启动的 Server 直接释放资源。
func (s *Server) Stop() error {
	s.stopping.Store(true)
	if s.state.CompareAndSwap(stateIdle, stateClosed) {
		s.shutdown()
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plClosed {
		return nil
	}
	return s.pl.Wake()
}

func (s *Server) waitTimeout() time.Duration {
	d := time.Duration(-1)
	if !s.acceptResume.IsZero() {
		d = max(s.acceptResume.Sub(s.now), 0)
	}
	if s.cfg.IdleTimeout > 0 {
		tick := max(s.cfg.IdleTimeout/2, time.Millisecond)
		if d < 0 || tick < d {
			d = tick
		}
	}
	return d
}

func (s *Server) dispatch(ev poller.Event) {
	if ev.FD == s.lfd {
		if ev.Ready&poller.Accept != 0 {
			s.acceptAll()
		}
		return
	}
	c, ok := s.conns[ev.FD]
	if !ok || c.epoch >= s.epoch {
		// 连接已关闭，或 fd 在本轮被新连接复用：事件早于该连接，丢弃
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.m.panics.Inc()
			s.log.Error("connection handler panic",
				zap.Uint64("conn", c.id), zap.Int("fd", c.fd), zap.Stringer("phase", c.phase),
				zap.Any("panic", r), zap.Stack("stack"))
			c.fail(fmt.Errorf("%w: %v", ErrHandlerPanic, r))
			s.closeConn(c)
		}
	}()
	c.lastActive = s.now
	switch c.phase {
	case Reading:
		if ev.Ready&poller.Read == 0 {
			return
		}
		n := c.onReadable(s.cfg.Responder)
		s.m.bytesRead.Add(float64(n))
		if c.phase == Writing {
			// 替换读注册为写注册
			if err := s.pl.Register(c.fd, poller.Write); err != nil {
				s.log.Warn("re-register for write", zap.Uint64("conn", c.id), zap.Error(err))
				c.fail(err)
			}
		}
	case Writing:
		if ev.Ready&poller.Write == 0 {
			return
		}
		n := c.onWritable()
		s.m.bytesWritten.Add(float64(n))
		if c.phase == Writing {
			s.m.partialWrites.Inc()
		}
	}
	if c.phase == Closed {
		s.closeConn(c)
	}
}

func (s *Server) acceptAll() {
	defer func() {
		if r := recover(); r != nil {
			s.m.panics.Inc()
			s.log.Error("accept panic", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	for first := true; ; first = false {
		fd, err := acceptOne(s.lfd)
		switch {
		case err == nil:
		case errors.Is(err, errWouldBlock):
			if first {
				s.log.Debug("accept race: nothing pending")
			}
			return
		case errors.Is(err, errAcceptRetry):
			continue
		default:
			s.m.acceptErrors.Inc()
			s.pauseAccept(err)
			return
		}
		s.acceptBackoff.Reset()
		s.openConn(fd)
	}
}

// pauseAccept 在 accept 失败（如 EMFILE）后暂时摘除监听 fd，避免水平触发下空转。
func (s *Server) pauseAccept(cause error) {
	d := s.nextAcceptPause()
	if err := s.pl.Deregister(s.lfd); err != nil {
		s.log.Warn("deregister listener", zap.Error(err))
	}
	s.acceptResume = s.now.Add(d)
	s.log.Warn("accept failed, pausing", zap.Error(cause), zap.Duration("pause", d))
}

// nextAcceptPause 取下一次退避时长，抖动后不超过 AcceptBackoffMax
func (s *Server) nextAcceptPause() time.Duration {
	d := s.acceptBackoff.NextBackOff()
	if d == backoff.Stop || d > s.cfg.AcceptBackoffMax {
		d = s.cfg.AcceptBackoffMax
	}
	return d
}

func (s *Server) resumeAccept() {
	if s.acceptResume.IsZero() || s.now.Before(s.acceptResume) {
		return
	}
	if err := s.pl.Register(s.lfd, poller.Accept); err != nil {
		d := s.nextAcceptPause()
		s.acceptResume = s.now.Add(d)
		s.log.Error("re-register listener", zap.Error(err), zap.Duration("retry", d))
		return
	}
	s.acceptResume = time.Time{}
	s.log.Info("accept resumed")
}

func (s *Server) openConn(fd int) {
	if err := configureConn(fd, &s.cfg); err != nil {
		s.log.Warn("configure accepted socket", zap.Int("fd", fd), zap.Error(err))
		closeFD(fd)
		return
	}
	s.nextID++
	c := newConnection(fd, newSocket(fd), &s.pool, s.cfg.ReadBufferSize, s.cfg.MaxRequestSize)
	c.id = s.nextID
	c.epoch = s.epoch
	c.lastActive = s.now
	s.conns[fd] = c
	s.m.accepted.Inc()
	s.m.open.Inc()
	if err := s.pl.Register(fd, poller.Read); err != nil {
		s.log.Warn("register connection", zap.Uint64("conn", c.id), zap.Error(err))
		c.fail(err)
		s.closeConn(c)
		return
	}
	if ce := s.log.Check(zap.DebugLevel, "connection opened"); ce != nil {
		ce.Write(zap.Uint64("conn", c.id), zap.Int("fd", fd))
	}
}

// closeConn 先摘除注册再关闭 fd，保证 fd 被复用前不会有残留注册。
func (s *Server) closeConn(c *connection) {
	if c.released {
		return
	}
	if err := s.pl.Deregister(c.fd); err != nil {
		s.log.Debug("deregister connection", zap.Uint64("conn", c.id), zap.Error(err))
	}
	if err := c.release(); err != nil {
		s.log.Debug("close connection", zap.Uint64("conn", c.id), zap.Error(err))
	}
	if s.conns[c.fd] == c {
		delete(s.conns, c.fd)
	}
	reason := closeReason(c.err)
	s.m.open.Dec()
	s.m.closed.WithLabelValues(reason).Inc()
	if ce := s.log.Check(zap.DebugLevel, "connection closed"); ce != nil {
		ce.Write(zap.Uint64("conn", c.id), zap.Int("fd", c.fd), zap.String("reason", reason), zap.Error(c.err))
	}
}

func (s *Server) sweepIdle() {
	for _, c := range s.conns {
		if s.now.Sub(c.lastActive) >= s.cfg.IdleTimeout {
			c.fail(ErrIdleTimeout)
			s.closeConn(c)
		}
	}
}

func (s *Server) shutdown() {
	for _, c := range s.conns {
		if c.phase != Closed {
			c.fail(ErrShutdown)
		}
		s.closeConn(c)
	}
	_ = s.pl.Deregister(s.lfd)
	_ = closeFD(s.lfd)
	s.mu.Lock()
	_ = s.pl.Close()
	s.plClosed = true
	s.mu.Unlock()
	s.state.Store(stateClosed)
	s.log.Info("stopped", zap.Stringer("addr", s.addr))
}
