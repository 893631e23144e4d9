// File: internal/observability/metrics.go
package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the session and command counters.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeNotFound = "not_found"
)

// Metrics groups the collectors for one process. Invocations are short lived,
// so the registry is flushed to a node-exporter textfile instead of scraped.
type Metrics struct {
	registry *prometheus.Registry

	Recoveries     *prometheus.CounterVec
	Creations      *prometheus.CounterVec
	ZombieCleanups *prometheus.CounterVec
	Evictions      *prometheus.CounterVec
	Commands       *prometheus.CounterVec
	CommandLatency prometheus.Histogram
}

// NewMetrics builds a Metrics instance backed by its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chromelink",
			Name:      "session_recoveries_total",
			Help:      "Attempts to reattach to a stored WebDriver session, by outcome.",
		}, []string{"outcome"}),
		Creations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chromelink",
			Name:      "session_creations_total",
			Help:      "Fresh WebDriver sessions created, by outcome.",
		}, []string{"outcome"}),
		ZombieCleanups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chromelink",
			Name:      "zombie_cleanups_total",
			Help:      "Best-effort terminations of sessions opened as a side effect of reattachment.",
		}, []string{"outcome"}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chromelink",
			Name:      "session_evictions_total",
			Help:      "Removals of stale session ids from the session store, by outcome.",
		}, []string{"outcome"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chromelink",
			Name:      "cdp_commands_total",
			Help:      "CDP commands forwarded, by outcome.",
		}, []string{"outcome"}),
		CommandLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chromelink",
			Name:      "cdp_command_duration_seconds",
			Help:      "Round-trip time of forwarded CDP commands.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	m.registry.MustRegister(m.Recoveries, m.Creations, m.ZombieCleanups, m.Evictions, m.Commands, m.CommandLatency)
	return m
}

// ObserveCommand records one forwarded command.
func (m *Metrics) ObserveCommand(started time.Time, err error) {
	if m == nil {
		return
	}
	m.CommandLatency.Observe(time.Since(started).Seconds())
	m.Commands.WithLabelValues(outcomeOf(err)).Inc()
}

// Registry exposes the underlying gatherer, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile atomically writes the current metric values to path in the
// Prometheus text exposition format. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}

// RecordRecovery, RecordCreation, RecordZombieCleanup and RecordEviction
// count one event each. All of them tolerate a nil receiver so components can
// run without metrics.
func (m *Metrics) RecordRecovery(outcome string) {
	if m != nil {
		m.Recoveries.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) RecordCreation(outcome string) {
	if m != nil {
		m.Creations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) RecordZombieCleanup(outcome string) {
	if m != nil {
		m.ZombieCleanups.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) RecordEviction(outcome string) {
	if m != nil {
		m.Evictions.WithLabelValues(outcome).Inc()
	}
}

func outcomeOf(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
