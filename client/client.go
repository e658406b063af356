package client

import (
	"context"
	"net"
	"time"

	"github.com/valyala/bytebufferpool"
)

// Client 为阻塞式短连接客户端：发送一次请求，读到对端关闭为止。
type Client struct {
	network string
	address string
	timeout time.Duration
}

func New(network, address string, timeout time.Duration) *Client {
	return &Client{network: network, address: address, timeout: timeout}
}

// Do 发送 req 后半关闭写端，返回服务端在关闭连接前写回的全部字节。
func (c *Client) Do(ctx context.Context, req []byte) ([]byte, error) {
	return c.roundTrip(ctx, req)
}

// Probe 建连后不发送任何数据直接半关闭，返回服务端写回的字节（正常应为空）。
func (c *Client) Probe(ctx context.Context) ([]byte, error) {
	return c.roundTrip(ctx, nil)
}

func (c *Client) roundTrip(ctx context.Context, req []byte) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	var d net.Dialer
	nc, err := d.DialContext(ctx, c.network, c.address)
	if err != nil {
		return nil, err
	}
	defer nc.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = nc.SetDeadline(dl)
	}
	if len(req) > 0 {
		if _, err := nc.Write(req); err != nil {
			return nil, err
		}
	}
	if tc, ok := nc.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil {
			return nil, err
		}
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err := buf.ReadFrom(nc); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.B...), nil
}
