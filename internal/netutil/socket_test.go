//go:build linux || darwin

package netutil

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestListenEphemeralPort(t *testing.T) {
	fd, addr, err := Listen("tcp", "127.0.0.1:0", 16, true)
	require.NoError(t, err)
	defer CloseFD(fd)

	require.NotNil(t, addr)
	assert.NotZero(t, addr.Port)
	assert.True(t, addr.IP.Equal(net.IPv4(127, 0, 0, 1)))

	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	require.NoError(t, err)
	assert.NotZero(t, flags&unix.O_NONBLOCK)

	c, err := net.DialTimeout("tcp", addr.String(), time.Second)
	require.NoError(t, err)
	c.Close()
}

func TestListenRejectsNetwork(t *testing.T) {
	_, _, err := Listen("udp", "127.0.0.1:0", 16, true)
	var unknown net.UnknownNetworkError
	assert.ErrorAs(t, err, &unknown)
}

func TestListenBadAddress(t *testing.T) {
	_, _, err := Listen("tcp", "not-an-address", 16, true)
	assert.Error(t, err)
}

func TestListenAddressInUse(t *testing.T) {
	fd, addr, err := Listen("tcp", "127.0.0.1:0", 16, false)
	require.NoError(t, err)
	defer CloseFD(fd)

	_, _, err = Listen("tcp", addr.String(), 16, false)
	assert.ErrorIs(t, err, unix.EADDRINUSE)
}

func TestSockaddrToTCPAddr(t *testing.T) {
	a := SockaddrToTCPAddr(&unix.SockaddrInet4{Port: 80, Addr: [4]byte{10, 0, 0, 1}})
	assert.Equal(t, "10.0.0.1:80", a.String())

	a = SockaddrToTCPAddr(&unix.SockaddrInet6{Port: 443, Addr: [16]byte{15: 1}})
	assert.Equal(t, "[::1]:443", a.String())

	assert.Nil(t, SockaddrToTCPAddr(&unix.SockaddrUnix{Name: "/tmp/x"}))
}
