//go:build linux || darwin

package server

import (
	"io"
	"net"

	"golang.org/x/sys/unix"

	"github.com/legamerdc/gnio/internal/netutil"
)

type fdSocket int

func (s fdSocket) Read(p []byte) (int, error) {
	n, err := unix.Read(int(s), p)
	switch {
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
		return 0, errWouldBlock
	case err != nil:
		return 0, err
	case n == 0 && len(p) > 0:
		return 0, io.EOF
	}
	return n, nil
}

func (s fdSocket) Write(p []byte) (int, error) {
	n, err := unix.Write(int(s), p)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, errWouldBlock
	}
	if n < 0 {
		n = 0
	}
	return n, err
}

func (s fdSocket) Close() error { return unix.Close(int(s)) }

func openListener(cfg *Config) (int, net.Addr, error) {
	fd, addr, err := netutil.Listen(cfg.ListenNetwork, cfg.ListenAddress, cfg.Backlog, cfg.ReuseAddr)
	if err != nil {
		return -1, nil, err
	}
	return fd, addr, nil
}

func closeFD(fd int) error { return netutil.CloseFD(fd) }

// acceptOne 接受一个连接；EAGAIN 映射为 errWouldBlock，可忽略的错误映射为 errAcceptRetry。
func acceptOne(lfd int) (int, error) {
	fd, err := rawAccept(lfd)
	switch err {
	case nil:
		return fd, nil
	case unix.EAGAIN:
		return -1, errWouldBlock
	case unix.ECONNABORTED, unix.EINTR, unix.EPROTO:
		return -1, errAcceptRetry
	}
	return -1, err
}

func configureConn(fd int, cfg *Config) error {
	if cfg.NoDelay {
		if err := netutil.SetNoDelay(fd, true); err != nil {
			return err
		}
	}
	if cfg.KeepAlive {
		if err := netutil.SetKeepAlive(fd, true); err != nil {
			return err
		}
	}
	return nil
}

func newSocket(fd int) socket { return fdSocket(fd) }
