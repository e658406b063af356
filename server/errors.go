package server

import "errors"

var (
	ErrServerRunning   = errors.New("server: already serving")
	ErrServerClosed    = errors.New("server: closed")
	ErrLoopFatal       = errors.New("server: poller unusable")
	ErrPeerClosed      = errors.New("server: peer closed")
	ErrRequestTooLarge = errors.New("server: request too large")
	ErrHandlerPanic    = errors.New("server: handler panic")
	ErrIdleTimeout     = errors.New("server: idle timeout")
	ErrShutdown        = errors.New("server: shutdown")

	errRead      = errors.New("server: read failed")
	errWrite     = errors.New("server: write failed")
	errResponder = errors.New("server: responder failed")

	// errWouldBlock 由 socket 层在 EAGAIN 时返回
	errWouldBlock  = errors.New("server: would block")
	// errAcceptRetry 表示本次 accept 可跳过并继续（ECONNABORTED 等）
	errAcceptRetry = errors.New("server: accept retry")
)
