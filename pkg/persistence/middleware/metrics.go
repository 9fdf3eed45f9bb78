package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fastmcp/sessions/pkg/domain"
	"github.com/fastmcp/sessions/pkg/ports"
)

// Operation outcomes used as metric label values.
const (
	outcomeOK    = "ok"
	outcomeMiss  = "miss"
	outcomeError = "error"
)

type metricsMiddleware struct {
	next ports.SessionStore

	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetricsMiddleware creates a middleware that counts store operations by
// outcome and observes their latency. Collectors are registered on reg;
// pass prometheus.DefaultRegisterer for the process-wide registry.
func NewMetricsMiddleware(reg prometheus.Registerer) Middleware {
	ops := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_store_operations_total",
			Help: "Session store operations by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "session_store_operation_seconds",
			Help:    "Session store operation latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	reg.MustRegister(ops, duration)

	return func(next ports.SessionStore) ports.SessionStore {
		return &metricsMiddleware{
			next:     next,
			ops:      ops,
			duration: duration,
		}
	}
}

func (m *metricsMiddleware) observe(op string, start time.Time, outcome string) {
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.ops.WithLabelValues(op, outcome).Inc()
}

func outcomeOf(found bool, err error) string {
	switch {
	case err != nil:
		return outcomeError
	case !found:
		return outcomeMiss
	default:
		return outcomeOK
	}
}

func (m *metricsMiddleware) Create(ctx context.Context, fields map[string]any) (string, error) {
	start := time.Now()
	id, err := m.next.Create(ctx, fields)
	m.observe("create", start, outcomeOf(true, err))
	return id, err
}

func (m *metricsMiddleware) Get(ctx context.Context, id string) (*domain.SessionRecord, error) {
	start := time.Now()
	rec, err := m.next.Get(ctx, id)
	m.observe("get", start, outcomeOf(rec != nil, err))
	return rec, err
}

func (m *metricsMiddleware) Update(ctx context.Context, id string, fields map[string]any) (bool, error) {
	start := time.Now()
	ok, err := m.next.Update(ctx, id, fields)
	m.observe("update", start, outcomeOf(ok, err))
	return ok, err
}

func (m *metricsMiddleware) Touch(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	ok, err := m.next.Touch(ctx, id)
	m.observe("touch", start, outcomeOf(ok, err))
	return ok, err
}

func (m *metricsMiddleware) Delete(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	ok, err := m.next.Delete(ctx, id)
	m.observe("delete", start, outcomeOf(ok, err))
	return ok, err
}

func (m *metricsMiddleware) List(ctx context.Context, filter map[string]any) ([]string, error) {
	start := time.Now()
	ids, err := m.next.List(ctx, filter)
	m.observe("list", start, outcomeOf(true, err))
	return ids, err
}

func (m *metricsMiddleware) Count(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := m.next.Count(ctx)
	m.observe("count", start, outcomeOf(true, err))
	return n, err
}

func (m *metricsMiddleware) Close() error {
	return m.next.Close()
}
