package enums

import (
	"fmt"
	"strings"
)

// BottlingRunStatus tracks a bottling run from planning through completion.
type BottlingRunStatus string

const (
	BottlingRunPlanning  BottlingRunStatus = "Planning"
	BottlingRunScheduled BottlingRunStatus = "Scheduled"
	BottlingRunCompleted BottlingRunStatus = "Completed"
	BottlingRunCanceled  BottlingRunStatus = "Canceled"
)

var validBottlingRunStatuses = []BottlingRunStatus{
	BottlingRunPlanning,
	BottlingRunScheduled,
	BottlingRunCompleted,
	BottlingRunCanceled,
}

// String implements fmt.Stringer.
func (s BottlingRunStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known BottlingRunStatus.
func (s BottlingRunStatus) IsValid() bool {
	for _, candidate := range validBottlingRunStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s BottlingRunStatus) IsTerminal() bool {
	return s == BottlingRunCompleted || s == BottlingRunCanceled
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s BottlingRunStatus) CanTransitionTo(next BottlingRunStatus) bool {
	switch s {
	case BottlingRunPlanning:
		return next == BottlingRunScheduled || next == BottlingRunCanceled
	case BottlingRunScheduled:
		return next == BottlingRunCompleted || next == BottlingRunCanceled
	default:
		return false
	}
}

// ParseBottlingRunStatus converts raw input into a BottlingRunStatus.
func ParseBottlingRunStatus(value string) (BottlingRunStatus, error) {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range validBottlingRunStatuses {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid bottling run status %q", value)
}
