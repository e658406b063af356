package protocol

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/valyala/bytebufferpool"
)

type httpOptions struct {
	contentType string
	compress    bool
}

type Option func(*httpOptions)

func WithContentType(ct string) Option {
	return func(o *httpOptions) { o.contentType = ct }
}

// WithCompression 预先计算 zstd / gzip 版本，按请求的 Accept-Encoding 选择。
func WithCompression() Option {
	return func(o *httpOptions) { o.compress = true }
}

type httpStatic struct {
	identity []byte
	gzip     []byte
	zstd     []byte
}

// NewHTTPStatic 构造 "Connection: close" 的 HTTP/1.1 固定响应。
// 任意非空请求即视为完整，不做请求分帧。
func NewHTTPStatic(status int, body []byte, opts ...Option) (Responder, error) {
	text := http.StatusText(status)
	if status < 100 || status > 999 || text == "" {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, status)
	}
	var o httpOptions
	for _, opt := range opts {
		opt(&o)
	}
	h := &httpStatic{identity: buildResponse(status, text, &o, "", body)}
	if !o.compress {
		return h, nil
	}
	h.zstd = buildResponse(status, text, &o, "zstd", compressZstd(body))
	gz, err := compressGzip(body)
	if err != nil {
		return nil, err
	}
	h.gzip = buildResponse(status, text, &o, "gzip", gz)
	return h, nil
}

func buildResponse(status int, text string, o *httpOptions, encoding string, body []byte) []byte {
	b := bytebufferpool.Get()
	defer bytebufferpool.Put(b)
	b.WriteString("HTTP/1.1 ")
	b.WriteString(strconv.Itoa(status))
	b.WriteString(" ")
	b.WriteString(text)
	b.WriteString("\r\nConnection: close\r\n")
	if o.contentType != "" {
		b.WriteString("Content-Type: " + o.contentType + "\r\n")
	}
	if o.compress {
		b.WriteString("Vary: Accept-Encoding\r\n")
	}
	if encoding != "" {
		b.WriteString("Content-Encoding: " + encoding + "\r\n")
	}
	b.WriteString("Content-Length: ")
	b.WriteString(strconv.Itoa(len(body)))
	b.WriteString("\r\n\r\n")
	b.Write(body)
	return append([]byte(nil), b.B...)
}

func (h *httpStatic) Respond(req []byte) ([]byte, bool, error) {
	if len(req) == 0 {
		return nil, false, nil
	}
	if h.zstd == nil {
		return h.identity, true, nil
	}
	acc := acceptedEncodings(req)
	switch {
	case acc["zstd"]:
		return h.zstd, true, nil
	case acc["gzip"]:
		return h.gzip, true, nil
	}
	return h.identity, true, nil
}

var acceptEncodingKey = []byte("accept-encoding:")

// acceptedEncodings 从请求头中取出可接受的编码（q=0 视为不接受）。
func acceptedEncodings(req []byte) map[string]bool {
	out := make(map[string]bool, 2)
	for len(req) > 0 {
		var line []byte
		if i := bytes.IndexByte(req, '\n'); i >= 0 {
			line, req = req[:i], req[i+1:]
		} else {
			line, req = req, nil
		}
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			break // 头部结束
		}
		if len(line) < len(acceptEncodingKey) || !bytes.EqualFold(line[:len(acceptEncodingKey)], acceptEncodingKey) {
			continue
		}
		for _, tok := range bytes.Split(line[len(acceptEncodingKey):], []byte(",")) {
			name, params, _ := bytes.Cut(tok, []byte(";"))
			name = bytes.ToLower(bytes.TrimSpace(name))
			if len(name) == 0 || rejected(params) {
				continue
			}
			out[string(name)] = true
		}
	}
	return out
}

func rejected(params []byte) bool {
	for _, p := range bytes.Split(params, []byte(";")) {
		k, v, ok := bytes.Cut(bytes.TrimSpace(p), []byte("="))
		if !ok || !bytes.EqualFold(bytes.TrimSpace(k), []byte("q")) {
			continue
		}
		q, err := strconv.ParseFloat(string(bytes.TrimSpace(v)), 64)
		return err == nil && q == 0
	}
	return false
}
