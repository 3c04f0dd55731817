package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistryCounters(t *testing.T) {
	r := New()

	r.IncSSIMCalls()
	r.IncSSIMCalls()
	if got := testutil.ToFloat64(r.SSIMCalls); got != 2 {
		t.Errorf("SSIMCalls = %v, want 2", got)
	}

	r.IncPHashRejected()
	if got := testutil.ToFloat64(r.PHashRejected); got != 1 {
		t.Errorf("PHashRejected = %v, want 1", got)
	}

	r.EventsSent.WithLabelValues("urgent").Inc()
	if got := testutil.ToFloat64(r.EventsSent.WithLabelValues("urgent")); got != 1 {
		t.Errorf("EventsSent[urgent] = %v, want 1", got)
	}
}

func TestObserveStage(t *testing.T) {
	r := New()
	r.ObserveStage("detect", 0.01)
	r.ObserveStage("detect", 0.02)
	if got := testutil.CollectAndCount(r.StageDuration); got != 1 {
		t.Errorf("StageDuration series count = %v, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	r := New()
	r.QueueDepth.Set(5)
	r.CacheSize.Set(42)
	if got := testutil.ToFloat64(r.QueueDepth); got != 5 {
		t.Errorf("QueueDepth = %v, want 5", got)
	}
	if got := testutil.ToFloat64(r.CacheSize); got != 42 {
		t.Errorf("CacheSize = %v, want 42", got)
	}
}
