package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Allocation outcome labels.
const (
	OutcomeCommitted    = "committed"
	OutcomeInsufficient = "insufficient_inventory"
	OutcomeInvalid      = "validation"
	OutcomeFailed       = "error"
)

// AllocationMetrics tracks bottling run commits and gallons moving through reservations.
type AllocationMetrics struct {
	outcomes *prometheus.CounterVec
	reserved prometheus.Counter
	released *prometheus.CounterVec
}

// NewAllocationMetrics registers the allocation metrics on the provided registerer.
func NewAllocationMetrics(reg prometheus.Registerer) *AllocationMetrics {
	if reg == nil {
		return &AllocationMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "allocation_attempts_total",
		Help:      "Bottling run allocation attempts by outcome.",
	}, []string{"outcome"})
	reserved := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gallons_reserved_total",
		Help:      "Gallons placed on reservation.",
	})
	released := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gallons_released_total",
		Help:      "Gallons taken off reservation, by closing status.",
	}, []string{"status"})
	reg.MustRegister(outcomes, reserved, released)
	return &AllocationMetrics{
		outcomes: outcomes,
		reserved: reserved,
		released: released,
	}
}

// ObserveAllocation counts one allocation attempt.
func (a *AllocationMetrics) ObserveAllocation(outcome string) {
	if a == nil || a.outcomes == nil {
		return
	}
	a.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// AddReserved records gallons placed on hold.
func (a *AllocationMetrics) AddReserved(gallons float64) {
	if a == nil || a.reserved == nil || gallons <= 0 {
		return
	}
	a.reserved.Add(gallons)
}

// AddReleased records gallons removed from hold by the given closing status.
func (a *AllocationMetrics) AddReleased(status string, gallons float64) {
	if a == nil || a.released == nil || gallons <= 0 {
		return
	}
	a.released.WithLabelValues(normalizeLabel(status)).Add(gallons)
}
