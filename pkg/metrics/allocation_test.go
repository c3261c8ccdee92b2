package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestAllocationMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAllocationMetrics(reg)
	m.ObserveAllocation(OutcomeCommitted)
	m.ObserveAllocation(OutcomeCommitted)
	m.ObserveAllocation(OutcomeInsufficient)
	m.AddReserved(120.5)
	m.AddReleased("Expired", 20)
	m.AddReleased("Expired", -3)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "mcpmp_allocation_attempts_total", "outcome", OutcomeCommitted); err != nil || got != 2 {
		t.Fatalf("expected committed=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "mcpmp_allocation_attempts_total", "outcome", OutcomeInsufficient); err != nil || got != 1 {
		t.Fatalf("expected insufficient=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "mcpmp_gallons_released_total", "status", "Expired"); err != nil || got != 20 {
		t.Fatalf("expected released=20, got %f (%v)", got, err)
	}

	mf := findMetricFamily(mfs, "mcpmp_gallons_reserved_total")
	if mf == nil || len(mf.GetMetric()) != 1 || mf.GetMetric()[0].GetCounter().GetValue() != 120.5 {
		t.Fatalf("expected reserved=120.5")
	}
}

func TestNilRegistererIsSafe(t *testing.T) {
	m := NewAllocationMetrics(nil)
	m.ObserveAllocation(OutcomeFailed)
	m.AddReserved(1)
	m.AddReleased("Released", 1)

	var nilMetrics *AllocationMetrics
	nilMetrics.ObserveAllocation(OutcomeFailed)
}
