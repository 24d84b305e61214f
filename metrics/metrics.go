// Package metrics provides Prometheus metrics for route gating.
package metrics

import (
	gate "github.com/agroconnect/gate-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gate. It implements
// gate.Recorder.
type Metrics struct {
	enabled bool

	// Route decisions
	decisionsTotal *prometheus.CounterVec

	// Profile lookups
	lookupsTotal   *prometheus.CounterVec
	lookupDuration *prometheus.HistogramVec
	breakerState   *prometheus.GaugeVec

	// Sessions
	sessionOpsTotal *prometheus.CounterVec
}

// compile-time check
var _ gate.Recorder = (*Metrics)(nil)

// New creates metrics registered with reg.
// If reg is nil, returns a no-op Metrics instance.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{enabled: reg != nil}

	if !m.enabled {
		return m
	}
	f := promauto.With(reg)

	m.decisionsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "agrogate_decisions_total",
		Help: "Route activations by terminal outcome and role",
	}, []string{"outcome", "role"})

	m.lookupsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "agrogate_profile_lookups_total",
		Help: "Profile lookups by role and result",
	}, []string{"role", "result"})

	m.lookupDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agrogate_profile_lookup_duration_seconds",
		Help:    "Profile lookup duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"role"})

	m.breakerState = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agrogate_profile_breaker_state",
		Help: "Profile lookup breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"breaker"})

	m.sessionOpsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "agrogate_session_operations_total",
		Help: "Session store operations by kind and result",
	}, []string{"op", "result"})

	return m
}

// RecordDecision records a settled route activation.
func (m *Metrics) RecordDecision(outcome, role string) {
	if !m.enabled {
		return
	}
	m.decisionsTotal.WithLabelValues(outcome, roleLabel(role)).Inc()
}

// RecordLookup records a profile lookup result.
func (m *Metrics) RecordLookup(role, result string, durationSeconds float64) {
	if !m.enabled {
		return
	}
	role = roleLabel(role)
	m.lookupsTotal.WithLabelValues(role, result).Inc()
	m.lookupDuration.WithLabelValues(role).Observe(durationSeconds)
}

// SetBreakerState sets the breaker gauge from a state name
// ("closed", "half-open", "open").
func (m *Metrics) SetBreakerState(breaker, state string) {
	if !m.enabled {
		return
	}
	v := 0.0
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	m.breakerState.WithLabelValues(breaker).Set(v)
}

// RecordSession records a session store operation ("create", "load",
// "destroy") and its result ("ok", "miss", "error").
func (m *Metrics) RecordSession(op, result string) {
	if !m.enabled {
		return
	}
	m.sessionOpsTotal.WithLabelValues(op, result).Inc()
}

// roleLabel keeps label cardinality bounded: roles come from tokens.
func roleLabel(role string) string {
	switch r := gate.NormalizeRole(role); r {
	case gate.RoleFarmer, gate.RoleBuyer, gate.RoleTransporter, gate.RoleAdmin:
		return string(r)
	case "":
		return "none"
	default:
		return "other"
	}
}
