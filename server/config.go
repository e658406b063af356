package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/legamerdc/gnio/protocol"
)

type Config struct {
	ListenNetwork  string        // tcp / tcp4 / tcp6
	ListenAddress  string        // 如 ":9090"
	Backlog        int           // listen(2) backlog
	ReuseAddr      bool          // SO_REUSEADDR
	NoDelay        bool          // 新连接 TCP_NODELAY
	KeepAlive      bool          // 新连接 SO_KEEPALIVE
	MaxEvents      int           // 每次 Wait 最多取回的事件数
	ReadBufferSize int           // 每次读的增长步长（字节）
	MaxRequestSize int           // 单连接请求缓冲上限（字节）
	IdleTimeout    time.Duration // 0 表示不做空闲淘汰

	// 接受失败（如 EMFILE）后暂停 accept 的退避区间
	AcceptBackoffMin time.Duration
	AcceptBackoffMax time.Duration

	Responder  protocol.Responder    // nil 时使用 protocol.Static(protocol.Hello)
	Logger     *zap.Logger           // nil 时不输出
	Registerer prometheus.Registerer // nil 时使用私有 registry
}

// DefaultConfig 提供一组可工作的默认值
func DefaultConfig() Config {
	return Config{
		ListenNetwork:    "tcp",
		ListenAddress:    ":9090",
		Backlog:          1024,
		ReuseAddr:        true,
		NoDelay:          true,
		KeepAlive:        true,
		MaxEvents:        1024,
		ReadBufferSize:   4 << 10, // 4 KiB
		MaxRequestSize:   64 << 10,
		AcceptBackoffMin: 5 * time.Millisecond,
		AcceptBackoffMax: time.Second,
	}
}

// normalize 用默认值填充零值字段
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.ListenNetwork == "" {
		c.ListenNetwork = d.ListenNetwork
	}
	if c.ListenAddress == "" {
		c.ListenAddress = d.ListenAddress
	}
	if c.Backlog <= 0 {
		c.Backlog = d.Backlog
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = d.MaxEvents
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.MaxRequestSize <= 0 {
		c.MaxRequestSize = d.MaxRequestSize
	}
	if c.MaxRequestSize < c.ReadBufferSize {
		c.ReadBufferSize = c.MaxRequestSize
	}
	if c.AcceptBackoffMin <= 0 {
		c.AcceptBackoffMin = d.AcceptBackoffMin
	}
	if c.AcceptBackoffMax < c.AcceptBackoffMin {
		c.AcceptBackoffMax = max(d.AcceptBackoffMax, c.AcceptBackoffMin)
	}
	if c.IdleTimeout < 0 {
		c.IdleTimeout = 0
	}
	if c.Responder == nil {
		c.Responder = protocol.Static(protocol.Hello)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
