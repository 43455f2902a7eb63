package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graytwin"

// Command statuses used as label values.
const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Gateway holds Prometheus metrics for the command gateway.
type Gateway struct {
	queueDepth      prometheus.Gauge
	commandWait     *prometheus.HistogramVec // By command
	commandDuration *prometheus.HistogramVec // By command
	commands        *prometheus.CounterVec   // By command and status
}

// NewGateway creates gateway metrics and registers them with reg.
//
// Parameters:
//   - reg: Registerer receiving the collectors
//
// Returns:
//   - *Gateway: Metrics ready to install with gateway.SetMetrics
//   - error: If a collector is already registered
func NewGateway(reg prometheus.Registerer) (*Gateway, error) {
	m := &Gateway{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "queue_depth",
			Help:      "Number of commands waiting for the twin worker",
		}),

		commandWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "command_wait_seconds",
			Help:      "Time commands spent queued before running",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"command"}),

		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "command_duration_seconds",
			Help:      "Time commands spent running on the twin worker",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}, []string{"command"}),

		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "commands_total",
			Help:      "Total number of executed commands",
		}, []string{"command", "status"}), // status: success, failure
	}

	for _, c := range []prometheus.Collector{m.queueDepth, m.commandWait, m.commandDuration, m.commands} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering gateway metrics: %w", err)
		}
	}
	return m, nil
}

// QueueDepth implements gateway.Metrics.
func (m *Gateway) QueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// CommandStarted implements gateway.Metrics.
func (m *Gateway) CommandStarted(name string, wait time.Duration) {
	m.commandWait.WithLabelValues(name).Observe(wait.Seconds())
}

// CommandFinished implements gateway.Metrics.
func (m *Gateway) CommandFinished(name string, run time.Duration, err error) {
	m.commandDuration.WithLabelValues(name).Observe(run.Seconds())
	status := statusSuccess
	if err != nil {
		status = statusFailure
	}
	m.commands.WithLabelValues(name, status).Inc()
}

// RouterStats is the view of notify.Router the metrics need.
type RouterStats interface {
	Pending() int
	Stats() (delivered, failed uint64)
}

// RegisterRouter registers notification delivery metrics read from r at
// scrape time.
func RegisterRouter(reg prometheus.Registerer, r RouterStats) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "pending_events",
			Help:      "Events queued for delivery to listeners",
		}, func() float64 { return float64(r.Pending()) }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "delivered_total",
			Help:      "Total number of successful listener deliveries",
		}, func() float64 {
			delivered, _ := r.Stats()
			return float64(delivered)
		}),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failed_total",
			Help:      "Total number of listener deliveries that returned an error or panicked",
		}, func() float64 {
			_, failed := r.Stats()
			return float64(failed)
		}),
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("registering router metrics: %w", err)
		}
	}
	return nil
}

// Handler serves the metrics of g in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
