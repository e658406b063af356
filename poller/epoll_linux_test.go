//go:build linux

package poller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestEpollFlags(t *testing.T) {
	assert.Equal(t, uint32(unix.EPOLLIN|unix.EPOLLRDHUP), epollFlags(Accept))
	assert.Equal(t, uint32(unix.EPOLLIN|unix.EPOLLRDHUP), epollFlags(Read))
	assert.Equal(t, uint32(unix.EPOLLOUT), epollFlags(Write))
	assert.Equal(t, uint32(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLOUT), epollFlags(Read|Write))
}
