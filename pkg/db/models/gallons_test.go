package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFitsGallonsScale(t *testing.T) {
	cases := map[string]bool{
		"0":          true,
		"120":        true,
		"0.0001":     true,
		"12.3400000": true,
		"0.00001":    false,
		"10.12345":   false,
		"-3.99999":   false,
	}
	for raw, want := range cases {
		assert.Equal(t, want, FitsGallonsScale(decimal.RequireFromString(raw)), raw)
	}
}
