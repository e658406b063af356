package gnio

import (
	"context"

	"github.com/legamerdc/gnio/protocol"
	"github.com/legamerdc/gnio/server"
)

// Config 为服务端配置，字段含义见 server.Config
type Config = server.Config

// Responder 为可插拔的响应生产者
type Responder = protocol.Responder

// DefaultConfig 返回监听 :9090、固定 Hello 响应的默认配置
func DefaultConfig() Config { return server.DefaultConfig() }

// ListenAndServe 绑定地址并在当前 goroutine 运行事件循环，直到 ctx 取消。
func ListenAndServe(ctx context.Context, cfg Config) error {
	s, err := server.New(cfg)
	if err != nil {
		return err
	}
	return s.Serve(ctx)
}
