package enums

import (
	"fmt"
	"strings"
)

// LotStatus labels a grape lot in the inventory ledger.
type LotStatus string

const (
	LotStatusAvailable   LotStatus = "Available"
	LotStatusReserved    LotStatus = "Reserved"
	LotStatusDepleted    LotStatus = "Depleted"
	LotStatusQuarantined LotStatus = "Quarantined"
)

var validLotStatuses = []LotStatus{
	LotStatusAvailable,
	LotStatusReserved,
	LotStatusDepleted,
	LotStatusQuarantined,
}

// String implements fmt.Stringer.
func (s LotStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known LotStatus.
func (s LotStatus) IsValid() bool {
	for _, candidate := range validLotStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLotStatus converts raw input into a LotStatus. Matching ignores case so
// exports that lower-case the label still load.
func ParseLotStatus(value string) (LotStatus, error) {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range validLotStatuses {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid lot status %q", value)
}
