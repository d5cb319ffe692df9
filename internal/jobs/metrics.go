package jobmetrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Task outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeRetry   = "retry"
	OutcomeSkipped = "skipped"
)

// Metrics counts task executions on the worker.
type Metrics struct {
	tasks    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
	purged   prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on reg, or once on the default
// registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg != nil {
		return register(reg)
	}
	defaultOnce.Do(func() { defaultMetrics = register(prometheus.DefaultRegisterer) })
	return defaultMetrics
}

func register(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_jobs_total",
			Help: "Task executions by task type and outcome.",
		}, []string{"task", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "keystone_jobs_duration_seconds",
			Help:    "Task handler latency.",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 30},
		}, []string{"task"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "keystone_jobs_inflight",
			Help: "Tasks currently being processed.",
		}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keystone_audit_purged_total",
			Help: "Audit log rows removed by the retention job.",
		}),
	}
	reg.MustRegister(m.tasks, m.duration, m.inflight, m.purged)
	return m
}

// Middleware instruments every task passing through an asynq.ServeMux.
func (m *Metrics) Middleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			if m == nil {
				return next.ProcessTask(ctx, t)
			}
			m.inflight.Inc()
			start := time.Now()
			err := next.ProcessTask(ctx, t)
			m.inflight.Dec()
			m.duration.WithLabelValues(t.Type()).Observe(time.Since(start).Seconds())
			m.tasks.WithLabelValues(t.Type(), Outcome(err)).Inc()
			return err
		})
	}
}

// Outcome classifies a handler result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, asynq.SkipRetry):
		return OutcomeSkipped
	default:
		return OutcomeRetry
	}
}

// AddPurged counts audit rows removed by the retention job.
func (m *Metrics) AddPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(float64(n))
}
