package repo

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records repository operation counts and latencies
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates the catalog collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catalog",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Catalog store operations by entity, operation and result.",
		}, []string{"entity", "operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "catalog",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Latency of catalog store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entity", "operation"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.duration)
	}
	return m
}

func (m *Metrics) observe(entity, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(entity, operation, resultLabel(err)).Inc()
	m.duration.WithLabelValues(entity, operation).Observe(time.Since(start).Seconds())
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
