package models

import "github.com/shopspring/decimal"

// GallonsScale is the fractional precision of every numeric(14,4) gallons column.
const GallonsScale = 4

// FitsGallonsScale reports whether g can be stored without rounding.
func FitsGallonsScale(g decimal.Decimal) bool {
	return g.Equal(g.Truncate(GallonsScale))
}
