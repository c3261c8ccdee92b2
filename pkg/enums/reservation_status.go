package enums

import (
	"fmt"
	"strings"
)

// ReservationStatus tracks a hold against a grape lot.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "Active"
	ReservationReleased  ReservationStatus = "Released"
	ReservationExpired   ReservationStatus = "Expired"
	ReservationFulfilled ReservationStatus = "Fulfilled"
)

var validReservationStatuses = []ReservationStatus{
	ReservationActive,
	ReservationReleased,
	ReservationExpired,
	ReservationFulfilled,
}

// String implements fmt.Stringer.
func (s ReservationStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ReservationStatus.
func (s ReservationStatus) IsValid() bool {
	for _, candidate := range validReservationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseReservationStatus converts raw input into a ReservationStatus.
func ParseReservationStatus(value string) (ReservationStatus, error) {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range validReservationStatuses {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reservation status %q", value)
}
