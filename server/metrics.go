package server

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/legamerdc/gnio/poller"
)

const namespace = "gnio"

// 关闭原因，用作 closed_total 的 reason 标签
const (
	reasonCompleted      = "completed"
	reasonPeerClosed     = "peer_closed"
	reasonReadError      = "read_error"
	reasonWriteError     = "write_error"
	reasonResponderError = "responder_error"
	reasonTooLarge       = "too_large"
	reasonPanic          = "panic"
	reasonIdle           = "idle"
	reasonShutdown       = "shutdown"
	reasonRegistration   = "registration"
)

type metrics struct {
	accepted      prometheus.Counter
	acceptErrors  prometheus.Counter
	closed        *prometheus.CounterVec
	open          prometheus.Gauge
	bytesRead     prometheus.Counter
	bytesWritten  prometheus.Counter
	partialWrites prometheus.Counter
	panics        prometheus.Counter
	iterations    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_accepted_total",
			Help: "Connections accepted by the reactor.",
		}),
		acceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "accept_errors_total",
			Help: "accept(2) failures other than would-block.",
		}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_closed_total",
			Help: "Connections closed, by reason.",
		}, []string{"reason"}),
		open: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections_open",
			Help: "Connections currently owned by the reactor.",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_read_total",
			Help: "Request bytes read from connections.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_written_total",
			Help: "Response bytes written to connections.",
		}),
		partialWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "partial_writes_total",
			Help: "Write-ready events that left response bytes pending.",
		}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "handler_panics_total",
			Help: "Panics recovered inside connection handlers.",
		}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "loop_iterations_total",
			Help: "Poller waits returned to the event loop.",
		}),
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	for _, c := range []prometheus.Collector{
		m.accepted, m.acceptErrors, m.closed, m.open,
		m.bytesRead, m.bytesWritten, m.partialWrites, m.panics, m.iterations,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// closeReason 将关闭原因映射为标签值
func closeReason(err error) string {
	switch {
	case err == nil:
		return reasonCompleted
	case errors.Is(err, ErrPeerClosed):
		return reasonPeerClosed
	case errors.Is(err, ErrRequestTooLarge):
		return reasonTooLarge
	case errors.Is(err, ErrHandlerPanic):
		return reasonPanic
	case errors.Is(err, ErrIdleTimeout):
		return reasonIdle
	case errors.Is(err, ErrShutdown):
		return reasonShutdown
	case errors.Is(err, poller.ErrRegistration):
		return reasonRegistration
	case errors.Is(err, errResponder):
		return reasonResponderError
	case errors.Is(err, errWrite):
		return reasonWriteError
	}
	return reasonReadError
}
