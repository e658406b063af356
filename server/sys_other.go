//go:build !linux && !darwin

package server

import (
	"net"

	"github.com/legamerdc/gnio/poller"
)

func openListener(*Config) (int, net.Addr, error) { return -1, nil, poller.ErrPlatformNotSupported }

func closeFD(int) error { return poller.ErrPlatformNotSupported }

func acceptOne(int) (int, error) { return -1, poller.ErrPlatformNotSupported }

func configureConn(int, *Config) error { return poller.ErrPlatformNotSupported }

func newSocket(int) socket { return nil }
