// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the lottery service.
type Metrics struct {
	// Cycle metrics
	CyclesCompleted     *prometheus.CounterVec
	ClaimedLamports     prometheus.Counter
	DistributedLamports prometheus.Counter
	LastDistribution    prometheus.Gauge

	// Selection metrics
	SelectionLatency prometheus.Histogram

	// Trigger metrics
	TriggerRequests *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "fee_lottery"
	}

	return &Metrics{
		CyclesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "completed_total",
			Help:      "Total number of completed distribution cycles by terminal status",
		}, []string{"status"}),
		ClaimedLamports: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "claimed_lamports_total",
			Help:      "Total lamports claimed from creator fees",
		}),
		DistributedLamports: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "distributed_lamports_total",
			Help:      "Total lamports paid out to winners and jackpot",
		}),
		LastDistribution: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "last_completed_timestamp",
			Help:      "Unix timestamp of the last completed cycle",
		}),
		SelectionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "selection",
			Name:      "latency_seconds",
			Help:      "Holder fetch plus VRF round-trip latency in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 60, 90, 120},
		}),
		TriggerRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "trigger_requests_total",
			Help:      "Total trigger endpoint requests by result",
		}, []string{"result"}),
	}
}

// CycleCompleted records one terminal cycle outcome.
func (m *Metrics) CycleCompleted(status string, claimedLamports, distributedLamports uint64) {
	m.CyclesCompleted.WithLabelValues(status).Inc()
	m.ClaimedLamports.Add(float64(claimedLamports))
	m.DistributedLamports.Add(float64(distributedLamports))
	m.LastDistribution.SetToCurrentTime()
}

// SelectionDuration records one selection round-trip.
func (m *Metrics) SelectionDuration(d time.Duration) {
	m.SelectionLatency.Observe(d.Seconds())
}

// RecordTrigger records one trigger request result.
func (m *Metrics) RecordTrigger(result string) {
	m.TriggerRequests.WithLabelValues(result).Inc()
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
