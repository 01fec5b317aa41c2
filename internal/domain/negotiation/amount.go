package negotiation

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a price from its wire form. NaN, infinities and
// non-positive values are rejected.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: value is required", ErrInvalidOffer)
	}
	switch strings.ToLower(strings.TrimLeft(raw, "+-")) {
	case "nan", "inf", "infinity":
		return decimal.Zero, fmt.Errorf("%w: value must be finite", ErrInvalidOffer)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidOffer, err)
	}
	if err := CheckAmount(v); err != nil {
		return decimal.Zero, err
	}
	return v, nil
}

// AmountFromFloat converts a float, rejecting NaN and infinities.
func AmountFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: value must be finite", ErrInvalidOffer)
	}
	v := decimal.NewFromFloat(f)
	if err := CheckAmount(v); err != nil {
		return decimal.Zero, err
	}
	return v, nil
}

// CheckAmount enforces a strictly positive price.
func CheckAmount(v decimal.Decimal) error {
	if !v.IsPositive() {
		return fmt.Errorf("%w: value must be positive, got %s", ErrInvalidOffer, v)
	}
	return nil
}
