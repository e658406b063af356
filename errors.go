package gnio

import (
	"github.com/legamerdc/gnio/poller"
	"github.com/legamerdc/gnio/server"
)

var (
	// ErrPlatformNotSupported 非 Linux / Darwin 平台（需要 epoll 或 kqueue）
	ErrPlatformNotSupported = poller.ErrPlatformNotSupported

	// ErrLoopFatal poller 不可用，事件循环退出
	ErrLoopFatal = server.ErrLoopFatal

	// ErrServerClosed Serve 在已停止的 Server 上调用
	ErrServerClosed = server.ErrServerClosed
)
