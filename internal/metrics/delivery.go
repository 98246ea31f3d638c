package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metadataFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "metadata",
		Name:      "fetch_total",
		Help:      "Count of token metadata lookups by outcome.",
	}, []string{"status"})
	metadataFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "metadata",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of token metadata lookups.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})
	notifierDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifier",
		Name:      "deliveries_total",
		Help:      "Count of mint notifications by outcome.",
	}, []string{"status"})
	notifierQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "notifier",
		Name:      "queue_depth",
		Help:      "Mints waiting for delivery.",
	})
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "commands",
		Name:      "handled_total",
		Help:      "Count of chat commands by name and outcome.",
	}, []string{"command", "status"})
)

// Metadata tracks token metadata lookups.
type Metadata struct{}

func NewMetadata() *Metadata {
	return &Metadata{}
}

// ObserveFetch records a metadata lookup outcome.
func (m *Metadata) ObserveFetch(err error, started time.Time) {
	if m == nil {
		return
	}
	status := statusOf(err)
	metadataFetchTotal.WithLabelValues(status).Inc()
	metadataFetchDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
}

// Notifier tracks notification delivery.
type Notifier struct{}

func NewNotifier() *Notifier {
	return &Notifier{}
}

// ObserveDelivery records a delivery outcome.
func (m *Notifier) ObserveDelivery(err error) {
	if m == nil {
		return
	}
	notifierDeliveriesTotal.WithLabelValues(statusOf(err)).Inc()
}

// SetQueueDepth records the number of queued mints.
func (m *Notifier) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	notifierQueueDepth.Set(float64(depth))
}

// Commands tracks chat command handling.
type Commands struct{}

func NewCommands() *Commands {
	return &Commands{}
}

// ObserveCommand records a handled command.
func (m *Commands) ObserveCommand(command string, err error) {
	if m == nil {
		return
	}
	commandsTotal.WithLabelValues(command, statusOf(err)).Inc()
}
