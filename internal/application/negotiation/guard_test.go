package negotiation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/negotiation"
)

func TestGuard_Check(t *testing.T) {
	band := &negotiation.PriceBand{Low: decimal.NewFromInt(100), High: decimal.NewFromInt(200)}

	tests := []struct {
		name    string
		expr    string
		value   int64
		band    *negotiation.PriceBand
		wantErr bool
	}{
		{"default inside", "", 150, band, false},
		{"default at lower limit", "", 50, band, false},
		{"default below", "", 49, band, true},
		{"default above", "", 401, band, true},
		{"no band passes", "", 100000, nil, false},
		{"custom width rule", "value <= high + width", 300, band, false},
		{"custom width rule fails", "value <= high + width", 301, band, true},
		{"mid is exposed", "value > mid", 151, band, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGuard(tt.expr)
			require.NoError(t, err)
			err = g.Check(decimal.NewFromInt(tt.value), tt.band)
			if tt.wantErr {
				assert.ErrorIs(t, err, negotiation.ErrInvalidOffer)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGuard_Compile(t *testing.T) {
	g, err := NewGuard("  ")
	require.NoError(t, err)
	assert.Equal(t, DefaultGuard, g.String())

	_, err = NewGuard("(value > low")
	assert.Error(t, err)

	g, err = NewGuard("value + 1")
	require.NoError(t, err)
	err = g.Check(decimal.NewFromInt(1), &negotiation.PriceBand{Low: decimal.NewFromInt(1), High: decimal.NewFromInt(2)})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, negotiation.ErrInvalidOffer)
}
