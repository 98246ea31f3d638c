package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollerTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "ticks_total",
		Help:      "Count of poll ticks by outcome.",
	}, []string{"status"})
	pollerTickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "tick_duration_seconds",
		Help:      "Duration of poll ticks.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})
	pollerCursorBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "last_processed_block",
		Help:      "Last block fully processed by the poller.",
	})
	pollerRangeSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "range_blocks",
		Help:      "Number of blocks covered per processed range.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
	pollerMintsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "mints_detected_total",
		Help:      "Count of mints detected.",
	})
	pollerDecodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "decode_errors_total",
		Help:      "Count of logs skipped because they could not be decoded.",
	})
)

// Poller tracks metrics for the event poller loop.
type Poller struct{}

// NewPoller constructs a Poller metrics collector.
func NewPoller() *Poller {
	return &Poller{}
}

// ObserveTick records a tick outcome and duration.
func (m *Poller) ObserveTick(err error, started time.Time) {
	if m == nil {
		return
	}
	status := statusOf(err)
	pollerTicksTotal.WithLabelValues(status).Inc()
	pollerTickDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
}

// ObserveRange records a processed range and the resulting cursor.
func (m *Poller) ObserveRange(from, to uint64, mints int) {
	if m == nil {
		return
	}
	pollerRangeSize.Observe(float64(to - from + 1))
	pollerCursorBlock.Set(float64(to))
	pollerMintsTotal.Add(float64(mints))
}

// IncDecodeError counts a skipped log.
func (m *Poller) IncDecodeError() {
	if m == nil {
		return
	}
	pollerDecodeErrorsTotal.Inc()
}
