package obshttp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric policyd exports. Pass to the
// components that need to record against it, mirroring the teacher's
// Metrics-struct-by-reference convention.
type Metrics struct {
	InquiriesTotal          *prometheus.CounterVec
	RateLimitActiveCounters prometheus.Gauge
	SweepDurationSeconds    prometheus.Histogram
	SweepRowsDeletedTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers every metric with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		InquiriesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "policyd",
				Name:      "inquiries_total",
				Help:      "Total policy inquiries decided, by verdict action",
			},
			[]string{"action"},
		),
		RateLimitActiveCounters: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "policyd",
				Name:      "rate_limit_active_counters",
				Help:      "Current number of live rate-limit counters across all limiters",
			},
		),
		SweepDurationSeconds: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "policyd",
				Name:      "sweep_duration_seconds",
				Help:      "Duration of retention sweep passes",
				Buckets:   prometheus.DefBuckets,
			},
		),
		SweepRowsDeletedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "policyd",
				Name:      "sweep_rows_deleted_total",
				Help:      "Total rows deleted by the retention sweeper, by kind",
			},
			[]string{"kind"}, // kind=inquiry_records|counters
		),
	}
}

// RecordInquiry implements service.MetricsRecorder.
func (m *Metrics) RecordInquiry(action string) {
	m.InquiriesTotal.WithLabelValues(action).Inc()
}

// RecordSweep implements service.SweepMetricsRecorder.
func (m *Metrics) RecordSweep(inquiryRecordsDeleted, countersDeleted int, duration time.Duration) {
	m.SweepRowsDeletedTotal.WithLabelValues("inquiry_records").Add(float64(inquiryRecordsDeleted))
	m.SweepRowsDeletedTotal.WithLabelValues("counters").Add(float64(countersDeleted))
	m.SweepDurationSeconds.Observe(duration.Seconds())
}

// SetActiveCounters implements service.SweepMetricsRecorder.
func (m *Metrics) SetActiveCounters(n int) {
	m.RateLimitActiveCounters.Set(float64(n))
}
