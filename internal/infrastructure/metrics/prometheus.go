package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tracker-backend/internal/domain"
)

// Prometheus records tracking metrics on its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	evaluations   *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	priceFailures *prometheus.CounterVec
	passDuration  *prometheus.HistogramVec
	openOrders    prometheus.Gauge
}

func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		evaluations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_evaluations_total",
				Help: "Order evaluations by tracking interval and outcome",
			},
			[]string{"interval", "outcome"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_transitions_total",
				Help: "Applied order status transitions",
			},
			[]string{"status"},
		),
		priceFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_price_failures_total",
				Help: "Price lookups that failed or timed out",
			},
			[]string{"symbol"},
		),
		passDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracker_pass_duration_seconds",
				Help:    "Duration of a full evaluation pass",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"interval"},
		),
		openOrders: f.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_open_orders",
			Help: "Open orders seen by the last pass",
		}),
	}
}

func (p *Prometheus) ObserveEvaluation(interval, outcome string) {
	p.evaluations.WithLabelValues(interval, outcome).Inc()
}

func (p *Prometheus) ObserveTransition(status domain.OrderStatus) {
	p.transitions.WithLabelValues(string(status)).Inc()
}

func (p *Prometheus) ObservePriceFailure(symbol string) {
	p.priceFailures.WithLabelValues(symbol).Inc()
}

func (p *Prometheus) ObservePass(interval string, d time.Duration) {
	p.passDuration.WithLabelValues(interval).Observe(d.Seconds())
}

func (p *Prometheus) SetOpenOrders(n int) {
	p.openOrders.Set(float64(n))
}

// Registry exposes the underlying registry for tests and extra collectors.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
