package protocol

import (
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/valyala/bytebufferpool"
)

var (
	zstdPool = sync.Pool{New: func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		return enc
	}}
	gzipPool = sync.Pool{New: func() any {
		zw, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
		return zw
	}}
)

func compressZstd(src []byte) []byte {
	enc := zstdPool.Get().(*zstd.Encoder)
	defer zstdPool.Put(enc)
	return enc.EncodeAll(src, nil)
}

func compressGzip(src []byte) ([]byte, error) {
	zw := gzipPool.Get().(*gzip.Writer)
	defer gzipPool.Put(zw)
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	zw.Reset(buf)
	if _, err := zw.Write(src); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.B...), nil
}
