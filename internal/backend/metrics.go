package backend

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BTreeMap/PostPipe/internal/flow"
	"github.com/BTreeMap/PostPipe/internal/models"
)

// Metrics holds the Prometheus collectors for backend calls.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the backend collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "postpipe",
			Subsystem: "backend",
			Name:      "calls_total",
			Help:      "Generation backend calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "postpipe",
			Subsystem: "backend",
			Name:      "call_duration_seconds",
			Help:      "Generation backend call latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"op"}),
	}
	for _, c := range []prometheus.Collector{m.calls, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// outcomeLabel maps a call result to the outcome label: "success", the BackendError
// kind, or "error".
func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	var be *models.BackendError
	if errors.As(err, &be) {
		return string(be.Kind)
	}
	return "error"
}

// Instrument records the count, outcome and latency of every backend call.
func Instrument(next flow.Backend, m *Metrics) flow.Backend {
	return &decorator{next: next, wrap: func(ctx context.Context, op string, fn call) error {
		start := time.Now()
		err := fn(ctx)
		m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		m.calls.WithLabelValues(op, outcomeLabel(err)).Inc()
		return err
	}}
}
