//go:build darwin

package server

import "golang.org/x/sys/unix"

// darwin 没有 accept4，接受后再设置非阻塞与 close-on-exec
func rawAccept(lfd int) (int, error) {
	fd, _, err := unix.Accept(lfd)
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}
