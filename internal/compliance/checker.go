// Package compliance evaluates the TTB cross-vintage labeling rule: a blend
// that mixes vintages must draw at least 85% from one primary vintage, and no
// other vintage may exceed 15%.
package compliance

import (
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/jasoncmcclain/mcpmp-api/pkg/errors"
)

const (
	RulePrimaryVintageMinimum   = "ttb_primary_vintage_minimum"
	RuleSecondaryVintageMaximum = "ttb_secondary_vintage_maximum"

	// RuleName is the human readable title of the regulation.
	RuleName = "TTB 15% Cross-Vintage Rule"
)

var (
	primaryMinimum   = decimal.NewFromInt(85)
	secondaryMaximum = decimal.NewFromInt(15)
)

// LotShare is one blend lot's contribution.
type LotShare struct {
	Vintage           int             `json:"vintage"`
	PercentageOfBlend decimal.Decimal `json:"percentage_of_blend"`
}

type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
	Vintage int    `json:"vintage"`
}

// VintageShare is the summed percentage for one vintage.
type VintageShare struct {
	Vintage    int             `json:"vintage"`
	Percentage decimal.Decimal `json:"percentage"`
}

type Result struct {
	Compliant      bool                    `json:"compliant"`
	PrimaryVintage int                     `json:"primary_vintage"`
	Breakdown      map[int]decimal.Decimal `json:"vintage_breakdown"`
	Vintages       []VintageShare          `json:"vintages"`
	Violations     []Violation             `json:"violations"`
}

// Check is pure: it touches no storage and can run before or after a run is committed.
// On an exact tie for the largest share, the vintage seen first in lots is primary.
func Check(lots []LotShare) (Result, error) {
	if len(lots) == 0 {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "at least one lot is required")
	}

	var shares []VintageShare
	index := map[int]int{}
	for i, lot := range lots {
		if lot.Vintage <= 0 {
			return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "vintage must be a positive year").
				WithDetails(map[string]any{"lot": i})
		}
		if lot.PercentageOfBlend.IsNegative() {
			return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "percentage_of_blend must not be negative").
				WithDetails(map[string]any{"lot": i})
		}
		pos, ok := index[lot.Vintage]
		if !ok {
			index[lot.Vintage] = len(shares)
			shares = append(shares, VintageShare{Vintage: lot.Vintage, Percentage: lot.PercentageOfBlend})
			continue
		}
		shares[pos].Percentage = shares[pos].Percentage.Add(lot.PercentageOfBlend)
	}

	result := Result{
		Compliant:  true,
		Breakdown:  make(map[int]decimal.Decimal, len(shares)),
		Vintages:   shares,
		Violations: []Violation{},
	}
	for _, share := range shares {
		result.Breakdown[share.Vintage] = share.Percentage
	}

	primary := shares[0]
	for _, share := range shares[1:] {
		if share.Percentage.GreaterThan(primary.Percentage) {
			primary = share
		}
	}
	result.PrimaryVintage = primary.Vintage

	if len(shares) == 1 {
		return result, nil
	}

	if primary.Percentage.LessThan(primaryMinimum) {
		result.Violations = append(result.Violations, Violation{
			Rule:    RulePrimaryVintageMinimum,
			Vintage: primary.Vintage,
			Message: fmt.Sprintf("Primary vintage %d is only %s%% (requires >= 85%%)", primary.Vintage, primary.Percentage.StringFixed(2)),
		})
	}
	for _, share := range shares {
		if share.Vintage == primary.Vintage {
			continue
		}
		if share.Percentage.GreaterThan(secondaryMaximum) {
			result.Violations = append(result.Violations, Violation{
				Rule:    RuleSecondaryVintageMaximum,
				Vintage: share.Vintage,
				Message: fmt.Sprintf("Secondary vintage %d is %s%% (max 15%% allowed)", share.Vintage, share.Percentage.StringFixed(2)),
			})
		}
	}
	result.Compliant = len(result.Violations) == 0
	return result, nil
}

// Notes renders violations as a single line for the bottling run record.
func Notes(result Result) string {
	if result.Compliant {
		return RuleName + ": compliant"
	}
	notes := RuleName + ":"
	for i, v := range result.Violations {
		if i > 0 {
			notes += ";"
		}
		notes += " " + v.Message
	}
	return notes
}
