package protocol

import "errors"

// Responder 根据已累积的请求字节产出响应。
// complete=false 表示请求尚未完整，连接继续读。
// 返回的 resp 在调用方复制前不得被修改，调用方也不会修改它。
type Responder interface {
	Respond(req []byte) (resp []byte, complete bool, err error)
}

type ResponderFunc func(req []byte) ([]byte, bool, error)

func (f ResponderFunc) Respond(req []byte) ([]byte, bool, error) { return f(req) }

// Hello 为默认的固定响应。
var Hello = []byte("HTTP/1.1 200 OK\r\nConnection: close\r\nContent-Length: 7\r\n\r\nHello\r\n")

var ErrInvalidStatus = errors.New("protocol: invalid status code")

type static struct{ resp []byte }

// Static 对任意非空请求返回固定字节；不解析请求内容。
func Static(resp []byte) Responder {
	return static{resp: append([]byte(nil), resp...)}
}

func (s static) Respond(req []byte) ([]byte, bool, error) {
	if len(req) == 0 {
		return nil, false, nil
	}
	return s.resp, true, nil
}
