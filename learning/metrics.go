package learning

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/warp/course-ledger/ledger"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	points      *prometheus.CounterVec
	completions prometheus.Counter
	backfilled  prometheus.Counter
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Engine operations by outcome (ok, rejected, failed).",
		}, []string{"op", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Engine operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		points: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_points_total",
			Help: "Points moved, by transaction kind.",
		}, []string{"kind"}),
		completions: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_course_completions_total",
			Help: "Enrollments that transitioned to completed.",
		}),
		backfilled: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_progress_rows_backfilled_total",
			Help: "Progress rows created for lessons added after enrollment.",
		}),
	}
}

func (m *Metrics) observe(op string, start time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) succeeded(op string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, "ok").Inc()
}

func (m *Metrics) rejected(op string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, "rejected").Inc()
}

func (m *Metrics) failed(op string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, "failed").Inc()
}

func (m *Metrics) moved(kind ledger.Kind, amount ledger.Points) {
	if m == nil || amount <= 0 {
		return
	}
	m.points.WithLabelValues(string(kind)).Add(float64(amount))
}

func (m *Metrics) completed() {
	if m == nil {
		return
	}
	m.completions.Inc()
}

func (m *Metrics) backfill(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.backfilled.Add(float64(n))
}
