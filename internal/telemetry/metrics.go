package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "mesline"

// Metrics holds the line's Prometheus collectors on a private registry.
// A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	steps         *prometheus.CounterVec
	ordersPlaced  prometheus.Counter
	ordersDone    prometheus.Counter
	leadTime      prometheus.Histogram
	queueDepth    *prometheus.GaugeVec
	machineUptime *prometheus.GaugeVec
	machineOn     *prometheus.GaugeVec
	serviceDue    *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "steps_total",
				Help:      "Pipeline steps attempted, by action and outcome",
			},
			[]string{"action", "result"},
		),
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "orders_placed_total",
			Help:      "Orders appended to the queue by this process",
		}),
		ordersDone: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "orders_archived_total",
			Help:      "Orders archived by this process",
		}),
		leadTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "order_lead_time_seconds",
			Help:      "Time from order placement to archival",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "queue_depth",
				Help:      "Live orders by status",
			},
			[]string{"status"},
		),
		machineUptime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "machine_uptime_seconds",
				Help:      "Accumulated run time including the current run",
			},
			[]string{"machine"},
		),
		machineOn: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "machine_running",
				Help:      "1 while the machine is ON",
			},
			[]string{"machine"},
		),
		serviceDue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "machine_service_due_hours",
				Help:      "Run hours left until the next maintenance",
			},
			[]string{"machine"},
		),
	}

	registry.MustRegister(
		m.steps,
		m.ordersPlaced,
		m.ordersDone,
		m.leadTime,
		m.queueDepth,
		m.machineUptime,
		m.machineOn,
		m.serviceDue,
	)
	return m
}

// StepApplied counts a step whose batch was written.
func (m *Metrics) StepApplied(action string) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(action, "applied").Inc()
}

// StepSkipped counts a step whose preconditions no longer held.
func (m *Metrics) StepSkipped(action string) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(action, "skipped").Inc()
}

func (m *Metrics) OrderPlaced() {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
}

func (m *Metrics) OrderArchived(lead time.Duration) {
	if m == nil {
		return
	}
	m.ordersDone.Inc()
	m.leadTime.Observe(lead.Seconds())
}

// SetQueueDepth records the number of live orders with status.
func (m *Metrics) SetQueueDepth(status string, n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(status).Set(float64(n))
}

// SetMachine records one machine's state.
func (m *Metrics) SetMachine(id string, uptime time.Duration, on bool, serviceDue float64) {
	if m == nil {
		return
	}
	running := 0.0
	if on {
		running = 1
	}
	m.machineUptime.WithLabelValues(id).Set(uptime.Seconds())
	m.machineOn.WithLabelValues(id).Set(running)
	m.serviceDue.WithLabelValues(id).Set(serviceDue)
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: false,
	})
}
