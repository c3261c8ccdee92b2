package allocation

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultBottleSize is used for any size missing from the table.
const DefaultBottleSize = "750ml"

// gallonsPerCase is the volume of one case for each bottle size. 750ml and
// 1.5L cases both hold 9 liters (12 and 6 bottles), 375ml and 187ml are
// packed 12 and 24 to a case.
var gallonsPerCase = map[string]decimal.Decimal{
	"750ml": decimal.RequireFromString("2.37753"),
	"1.5l":  decimal.RequireFromString("2.37753"),
	"500ml": decimal.RequireFromString("1.58502"),
	"375ml": decimal.RequireFromString("1.188765"),
	"187ml": decimal.RequireFromString("1.18560"),
}

// NormalizeBottleSize lower-cases and strips spaces so "1.5 L" and "1.5l" match.
func NormalizeBottleSize(size string) string {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(size), " ", ""))
	if normalized == "" {
		return DefaultBottleSize
	}
	return normalized
}

// GallonsPerCase resolves the conversion for size. Unknown sizes fall back to
// the 750ml figure; the second return reports whether size was in the table.
func GallonsPerCase(size string) (decimal.Decimal, bool) {
	if v, ok := gallonsPerCase[NormalizeBottleSize(size)]; ok {
		return v, true
	}
	return gallonsPerCase[DefaultBottleSize], false
}

// PlannedGallons is cases × gallons per case for size.
func PlannedGallons(cases int, size string) decimal.Decimal {
	perCase, _ := GallonsPerCase(size)
	return perCase.Mul(decimal.NewFromInt(int64(cases)))
}
