//go:build linux || darwin

package netutil

import (
	"net"
	"strings"

	"golang.org/x/sys/unix"
)

func SetNonblock(fd int, nonblock bool) error {
	return unix.SetNonblock(fd, nonblock)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func SetReuseAddr(fd int, enable bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolInt(enable))
}

func SetNoDelay(fd int, enable bool) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolInt(enable))
}

func SetKeepAlive(fd int, enable bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolInt(enable))
}

// Listen 创建非阻塞监听 socket，返回 fd 与实际绑定地址（":0" 时端口由内核分配）。
func Listen(network, address string, backlog int, reuseAddr bool) (int, *net.TCPAddr, error) {
	switch network {
	case "", "tcp", "tcp4", "tcp6":
	default:
		return -1, nil, net.UnknownNetworkError(network)
	}
	fam := unix.AF_INET
	resolveNet := "tcp4"
	if strings.HasSuffix(network, "6") {
		fam = unix.AF_INET6
		resolveNet = "tcp6"
	}
	addr, err := net.ResolveTCPAddr(resolveNet, address)
	if err != nil {
		return -1, nil, err
	}
	fd, err := unix.Socket(fam, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, nil, err
	}
	unix.CloseOnExec(fd)
	if reuseAddr {
		_ = SetReuseAddr(fd, true)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	if err := unix.Bind(fd, tcpSockaddr(fam, addr)); err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	sa, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	return fd, SockaddrToTCPAddr(sa), nil
}

func tcpSockaddr(fam int, addr *net.TCPAddr) unix.Sockaddr {
	if fam == unix.AF_INET6 {
		sa6 := &unix.SockaddrInet6{Port: addr.Port}
		if addr.IP != nil {
			copy(sa6.Addr[:], addr.IP.To16())
		}
		return sa6
	}
	sa4 := &unix.SockaddrInet4{Port: addr.Port}
	if ip4 := addr.IP.To4(); ip4 != nil {
		copy(sa4.Addr[:], ip4)
	}
	return sa4
}

func SockaddrToTCPAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IPv4(a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3]), Port: a.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, a.Addr[:])
		return &net.TCPAddr{IP: ip, Port: a.Port}
	}
	return nil
}

func CloseFD(fd int) error { return unix.Close(fd) }
