//go:build linux || darwin

package gnio

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestListenAndServeReturnsOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.Registerer = prometheus.NewRegistry()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, ListenAndServe(ctx, cfg))
}

func TestListenAndServeBindError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenNetwork = "unix"
	cfg.Registerer = prometheus.NewRegistry()
	assert.Error(t, ListenAndServe(context.Background(), cfg))
}
