package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Fetches.Inc()
	m.Failures.WithLabelValues("404").Inc()

	if got := testutil.ToFloat64(m.Fetches); got != 1 {
		t.Errorf("fetches = %v, want 1", got)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "discovery_retrieval_failures_total" {
			found = true
		}
	}
	if !found {
		t.Error("failures counter not registered")
	}
}

func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	New(reg)
}

func TestOrDiscard(t *testing.T) {
	m := New(prometheus.NewRegistry())
	if OrDiscard(m) != m {
		t.Error("OrDiscard replaced a non-nil value")
	}
	if OrDiscard(nil) == nil {
		t.Error("OrDiscard(nil) returned nil")
	}
}
