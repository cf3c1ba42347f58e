package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CoreMetrics records counters for the auth/audit core.
type CoreMetrics struct {
	loginAttempts *prometheus.CounterVec
	auditEntries  *prometheus.CounterVec
	wasteOutcomes *prometheus.CounterVec
	hashDuration  prometheus.Histogram
}

// NewCoreMetrics registers the core metrics on the provided registerer. A nil
// registerer yields a no-op instance so callers never need to guard.
func NewCoreMetrics(reg prometheus.Registerer) *CoreMetrics {
	if reg == nil {
		return &CoreMetrics{}
	}
	loginAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "login_attempts_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})
	auditEntries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_entries_total",
		Help: "Audit trail entries recorded, by action.",
	}, []string{"action"})
	wasteOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "waste_writeoffs_total",
		Help: "Waste write-off requests by outcome.",
	}, []string{"outcome"})
	hashDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "password_hash_duration_seconds",
		Help:    "Duration of password hashing operations.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(loginAttempts, auditEntries, wasteOutcomes, hashDuration)
	return &CoreMetrics{
		loginAttempts: loginAttempts,
		auditEntries:  auditEntries,
		wasteOutcomes: wasteOutcomes,
		hashDuration:  hashDuration,
	}
}

// IncLogin counts one login attempt with the given outcome.
func (m *CoreMetrics) IncLogin(outcome string) {
	if m == nil || m.loginAttempts == nil {
		return
	}
	m.loginAttempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncAudit counts one recorded audit entry for the named action.
func (m *CoreMetrics) IncAudit(action string) {
	if m == nil || m.auditEntries == nil {
		return
	}
	m.auditEntries.WithLabelValues(normalizeLabel(action)).Inc()
}

// IncWaste counts one waste write-off request with the given outcome.
func (m *CoreMetrics) IncWaste(outcome string) {
	if m == nil || m.wasteOutcomes == nil {
		return
	}
	m.wasteOutcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveHashDuration records the duration of one hashing operation.
func (m *CoreMetrics) ObserveHashDuration(d time.Duration) {
	if m == nil || m.hashDuration == nil {
		return
	}
	m.hashDuration.Observe(d.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
