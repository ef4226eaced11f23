package auctiond

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics collects the daemon's Prometheus metrics on a private
// registry, so tests can run servers side by side without collisions.
type serverMetrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec

	auctionsCreated prometheus.Counter
	bidsAccepted    prometheus.Counter
	bidsRejected    prometheus.Counter
	openAuctions    prometheus.Gauge
}

func newServerMetrics() *serverMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &serverMetrics{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oysterpack",
			Subsystem: "auctiond",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route pattern and status code.",
		}, []string{"route", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "oysterpack",
			Subsystem: "auctiond",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		auctionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "oysterpack",
			Subsystem: "auctiond",
			Name:      "auctions_created_total",
			Help:      "Auctions created through the registrar.",
		}),
		bidsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "oysterpack",
			Subsystem: "auctiond",
			Name:      "bids_accepted_total",
			Help:      "Bids the auction program accepted.",
		}),
		bidsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "oysterpack",
			Subsystem: "auctiond",
			Name:      "bids_rejected_total",
			Help:      "Bids the auction program rejected.",
		}),
		openAuctions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "oysterpack",
			Subsystem: "auctiond",
			Name:      "open_auctions",
			Help:      "Auctions currently in the Committed status.",
		}),
	}
}
