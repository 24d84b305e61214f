package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(reg), reg
}

func TestMetricsDisabled(t *testing.T) {
	metrics := New(nil)

	if metrics == nil {
		t.Fatal("metrics should not be nil (noop)")
	}

	// These should not panic even though they're noop
	metrics.RecordDecision("render", "farmer")
	metrics.RecordLookup("farmer", "found", 0.001)
	metrics.SetBreakerState("profile-lookup", "open")
	metrics.RecordSession("load", "ok")
}

func TestRecordDecision(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordDecision("render", "farmer")
	m.RecordDecision("render", "Farmer")
	m.RecordDecision("redirect_login", "")

	if got := testutil.ToFloat64(m.decisionsTotal.WithLabelValues("render", "farmer")); got != 2 {
		t.Errorf("render/farmer = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.decisionsTotal.WithLabelValues("redirect_login", "none")); got != 1 {
		t.Errorf("redirect_login/none = %v, want 1", got)
	}
}

func TestRoleLabelBounded(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordDecision("redirect_login", "superuser")
	m.RecordDecision("redirect_login", "root")

	if got := testutil.ToFloat64(m.decisionsTotal.WithLabelValues("redirect_login", "other")); got != 2 {
		t.Errorf("redirect_login/other = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(m.decisionsTotal); n != 1 {
		t.Errorf("series = %d, want 1", n)
	}
}

func TestRecordLookup(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordLookup("buyer", "missing", 0.01)
	m.RecordLookup("buyer", "found", 0.02)
	m.RecordLookup("buyer", "found", 0.03)

	if got := testutil.ToFloat64(m.lookupsTotal.WithLabelValues("buyer", "found")); got != 2 {
		t.Errorf("buyer/found = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(m.lookupDuration); n != 1 {
		t.Errorf("histogram series = %d, want 1", n)
	}
}

func TestSetBreakerState(t *testing.T) {
	m, _ := newTestMetrics(t)

	tests := []struct {
		state string
		want  float64
	}{
		{"open", 2},
		{"half-open", 1},
		{"closed", 0},
	}
	for _, tt := range tests {
		m.SetBreakerState("profile-lookup", tt.state)
		if got := testutil.ToFloat64(m.breakerState.WithLabelValues("profile-lookup")); got != tt.want {
			t.Errorf("state %s = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestRecordSession(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordSession("create", "ok")
	m.RecordSession("load", "miss")
	m.RecordSession("load", "miss")

	if got := testutil.ToFloat64(m.sessionOpsTotal.WithLabelValues("load", "miss")); got != 2 {
		t.Errorf("load/miss = %v, want 2", got)
	}
}

func TestRegistryGathers(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RecordDecision("render", "buyer")

	n, err := testutil.GatherAndCount(reg, "agrogate_decisions_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error: %v", err)
	}
	if n != 1 {
		t.Errorf("gathered = %d, want 1", n)
	}
}

func TestSeparateRegistries(t *testing.T) {
	a, _ := newTestMetrics(t)
	b, _ := newTestMetrics(t)
	a.RecordDecision("render", "farmer")
	b.RecordDecision("render", "farmer")
}
