package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics tracks escrow and dispute engine activity.
type EscrowMetrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	payouts    *prometheus.CounterVec
	verdicts   *prometheus.CounterVec
	hookErrors *prometheus.CounterVec
}

var (
	escrowMetricsOnce sync.Once
	escrowRegistry    *EscrowMetrics
)

// Escrow returns the lazily-initialised escrow metrics registry.
func Escrow() *EscrowMetrics {
	escrowMetricsOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "p2pescrow",
				Subsystem: "escrow",
				Name:      "operations_total",
				Help:      "Escrow entry point invocations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "p2pescrow",
				Subsystem: "escrow",
				Name:      "failures_total",
				Help:      "Rejected escrow operations segmented by operation and error class.",
			}, []string{"operation", "class"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "p2pescrow",
				Subsystem: "escrow",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for escrow operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "p2pescrow",
				Subsystem: "escrow",
				Name:      "payout_units_total",
				Help:      "Units paid out of escrow vaults segmented by settlement path.",
			}, []string{"path"}),
			verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "p2pescrow",
				Subsystem: "dispute",
				Name:      "verdicts_total",
				Help:      "Executed dispute verdicts segmented by winning side.",
			}, []string{"winner"}),
			hookErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "p2pescrow",
				Subsystem: "escrow",
				Name:      "hook_errors_total",
				Help:      "Discarded failures from best-effort reputation and reward hooks.",
			}, []string{"hook"}),
		}
		prometheus.MustRegister(
			escrowRegistry.operations,
			escrowRegistry.failures,
			escrowRegistry.latency,
			escrowRegistry.payouts,
			escrowRegistry.verdicts,
			escrowRegistry.hookErrors,
		)
	})
	return escrowRegistry
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

// Observe records the outcome of an escrow operation. class is empty on
// success.
func (m *EscrowMetrics) Observe(operation string, duration time.Duration, class string) {
	if m == nil {
		return
	}
	op := normalizeLabel(operation)
	outcome := "success"
	if class != "" {
		outcome = "error"
		m.failures.WithLabelValues(op, class).Inc()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordPayout adds the paid units for the supplied settlement path.
func (m *EscrowMetrics) RecordPayout(path string, units uint64) {
	if m == nil {
		return
	}
	m.payouts.WithLabelValues(normalizeLabel(path)).Add(float64(units))
}

// RecordVerdict increments the verdict counter for the winning side.
func (m *EscrowMetrics) RecordVerdict(winner string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(normalizeLabel(winner)).Inc()
}

// RecordHookError increments the discarded hook failure counter.
func (m *EscrowMetrics) RecordHookError(hook string) {
	if m == nil {
		return
	}
	m.hookErrors.WithLabelValues(normalizeLabel(hook)).Inc()
}
