package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the ledger collectors on a private registry. There is no
// scrape endpoint; WriteTextfile dumps the registry for a node exporter
// textfile collector.
type Metrics struct {
	Registry *prometheus.Registry

	ops           *prometheus.CounterVec
	notifications *prometheus.CounterVec
	nextID        prometheus.Gauge
	cycle         prometheus.Gauge
	cycleDuration prometheus.Histogram
	indexDrops    *prometheus.GaugeVec
}

func NewMetrics(ledgerID string) *Metrics {
	constLabels := prometheus.Labels{"ledger": ledgerID}
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "kittyledger",
				Name:        "ops_total",
				Help:        "Ledger commands processed, by type and result code.",
				ConstLabels: constLabels,
			},
			[]string{"op", "code"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "kittyledger",
				Name:        "notifications_total",
				Help:        "Notifications emitted, by kind.",
				ConstLabels: constLabels,
			},
			[]string{"kind"},
		),
		nextID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "kittyledger",
			Name:        "next_id",
			Help:        "Next kitty id to be allocated.",
			ConstLabels: constLabels,
		}),
		cycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "kittyledger",
			Name:        "cycle",
			Help:        "Last completed processing cycle.",
			ConstLabels: constLabels,
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "kittyledger",
			Name:        "cycle_duration_seconds",
			Help:        "Time spent applying one processing cycle.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),
		indexDrops: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   "kittyledger",
				Subsystem:   "index",
				Name:        "dropped_total",
				Help:        "Index writes dropped because the queue was full.",
				ConstLabels: constLabels,
			},
			[]string{"kind"},
		),
	}
	m.Registry.MustRegister(m.ops, m.notifications, m.nextID, m.cycle, m.cycleDuration, m.indexDrops)
	return m
}

// RecordOp counts one command. code is "" for success.
func (m *Metrics) RecordOp(op, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "OK"
	}
	m.ops.WithLabelValues(op, code).Inc()
}

func (m *Metrics) RecordNotification(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordCycle(cycle uint64, nextID uint32, took time.Duration) {
	if m == nil {
		return
	}
	m.cycle.Set(float64(cycle))
	m.nextID.Set(float64(nextID))
	m.cycleDuration.Observe(took.Seconds())
}

func (m *Metrics) SetIndexDrops(kind string, total uint64) {
	if m == nil {
		return
	}
	m.indexDrops.WithLabelValues(kind).Set(float64(total))
}

func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
