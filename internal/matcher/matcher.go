// Package matcher proposes candidate grape lots for each component of a blend.
// Matching is advisory: nothing is reserved, and a candidate may be gone by
// the time the caller commits an allocation.
package matcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jasoncmcclain/mcpmp-api/internal/inventory"
	"github.com/jasoncmcclain/mcpmp-api/pkg/db/models"
	pkgerrors "github.com/jasoncmcclain/mcpmp-api/pkg/errors"
)

// DefaultCandidateLimit caps the candidates returned per component.
const DefaultCandidateLimit = 5

var hundred = decimal.NewFromInt(100)

type lotSource interface {
	AvailableLots(ctx context.Context, filter inventory.Filter) ([]models.GrapeLot, error)
}

// Component is one line of a blend composition.
type Component struct {
	Varietal    string          `json:"varietal"`
	Appellation *string         `json:"appellation,omitempty"`
	Vineyard    *string         `json:"vineyard,omitempty"`
	Percentage  decimal.Decimal `json:"percentage"`
}

// ComponentMatch pairs a component with its ordered candidates.
type ComponentMatch struct {
	Component     Component          `json:"component"`
	GallonsNeeded decimal.Decimal    `json:"gallons_needed"`
	Candidates    []inventory.LotDTO `json:"candidates"`
}

type Matcher struct {
	lots  lotSource
	limit int
}

func New(lots lotSource, limit int) (*Matcher, error) {
	if lots == nil {
		return nil, fmt.Errorf("lot source required")
	}
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	return &Matcher{lots: lots, limit: limit}, nil
}

// Match returns, per component and in input order, up to the candidate limit
// of lots that can each supply the component's full requirement. Lots come
// back oldest vintage first, then earliest intake. Every component is
// validated before any lot is queried.
func (m *Matcher) Match(ctx context.Context, components []Component, targetGallons decimal.Decimal) ([]ComponentMatch, error) {
	if !targetGallons.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target_gallons must be positive")
	}
	if len(components) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "composition must contain at least one component")
	}

	needed := make([]decimal.Decimal, len(components))
	for i, c := range components {
		if err := validateComponent(i, c); err != nil {
			return nil, err
		}
		needed[i] = GallonsNeeded(targetGallons, c.Percentage)
		if !needed[i].IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "gallons needed must be positive").
				WithDetails(map[string]any{"component": i, "gallons_needed": needed[i]})
		}
	}

	out := make([]ComponentMatch, 0, len(components))
	for i, c := range components {
		lots, err := m.lots.AvailableLots(ctx, inventory.Filter{
			Varietal:    c.Varietal,
			Appellation: c.Appellation,
			Vineyard:    c.Vineyard,
			MinGallons:  needed[i],
			Match:       inventory.MatchExact,
			Limit:       m.limit,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, ComponentMatch{
			Component:     c,
			GallonsNeeded: needed[i],
			Candidates:    inventory.ToDTOs(lots),
		})
	}
	return out, nil
}

// GallonsNeeded is target × percentage / 100.
func GallonsNeeded(target, percentage decimal.Decimal) decimal.Decimal {
	return target.Mul(percentage).Div(hundred)
}

func validateComponent(index int, c Component) error {
	details := map[string]any{"component": index}
	if strings.TrimSpace(c.Varietal) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "component varietal is required").WithDetails(details)
	}
	if !c.Percentage.IsPositive() || c.Percentage.GreaterThan(hundred) {
		details["percentage"] = c.Percentage
		return pkgerrors.New(pkgerrors.CodeValidation, "component percentage must be greater than 0 and at most 100").WithDetails(details)
	}
	return nil
}

// ComponentsFromProfile converts a stored composition profile into matcher input.
func ComponentsFromProfile(profile []models.CompositionComponent) []Component {
	out := make([]Component, 0, len(profile))
	for _, p := range profile {
		out = append(out, Component{
			Varietal:    p.Varietal,
			Appellation: p.Appellation,
			Vineyard:    p.Vineyard,
			Percentage:  p.Percentage,
		})
	}
	return out
}

// MatchBlend matches a core blend's stored composition against targetGallons.
func (m *Matcher) MatchBlend(ctx context.Context, blend *models.CoreBlend, targetGallons decimal.Decimal) ([]ComponentMatch, error) {
	if blend == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "core blend required")
	}
	return m.Match(ctx, ComponentsFromProfile(blend.CompositionProfile), targetGallons)
}
