// Package metrics exposes prometheus collectors for the monitor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flashloan_arb"

// Metrics holds every collector the engine and scheduler touch
type Metrics struct {
	Notifications        *prometheus.CounterVec
	NotificationsDropped prometheus.Counter
	Cycles               *prometheus.CounterVec
	CycleDuration        prometheus.Histogram
	LastDivergence       *prometheus.GaugeVec
	RPCCalls             *prometheus.CounterVec
}

// New builds the collectors and registers them with reg. A nil reg registers nothing,
// which is what tests and one-shot tools want.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "notifications_total",
			Help:      "Swap notifications received, by venue",
		}, []string{"venue"}),
		NotificationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "notifications_dropped_total",
			Help:      "Swap notifications dropped because a cycle was already in flight",
		}),
		Cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "cycles_total",
			Help:      "Decision cycles completed, by outcome",
		}, []string{"outcome"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one decision cycle",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		LastDivergence: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "last_divergence_pct",
			Help:      "Most recent price divergence between the two venues, in percent",
		}, []string{"pair"}),
		RPCCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Node RPC calls, by method and result",
		}, []string{"method", "result"}),
	}
}

// Handler serves the collectors registered on gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
