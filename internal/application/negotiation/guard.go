package negotiation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/shopspring/decimal"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/negotiation"
)

// DefaultGuard accepts anything between half the band floor and twice its ceiling.
const DefaultGuard = "value >= low * 0.5 && value <= high * 2"

// Guard is the band plausibility check applied to offers when a band is known.
// Expressions see value, low, high, width and mid.
type Guard struct {
	source string
	expr   *govaluate.EvaluableExpression
}

// NewGuard compiles expression; an empty expression uses DefaultGuard.
func NewGuard(expression string) (*Guard, error) {
	src := strings.TrimSpace(expression)
	if src == "" {
		src = DefaultGuard
	}
	expr, err := govaluate.NewEvaluableExpression(src)
	if err != nil {
		return nil, fmt.Errorf("invalid offer guard %q: %w", src, err)
	}
	return &Guard{source: src, expr: expr}, nil
}

func (g *Guard) String() string {
	return g.source
}

// Check returns ErrInvalidOffer when value is implausible for band. A nil band
// passes everything.
func (g *Guard) Check(value decimal.Decimal, band *negotiation.PriceBand) error {
	if band == nil {
		return nil
	}
	params := map[string]interface{}{
		"value": value.InexactFloat64(),
		"low":   band.Low.InexactFloat64(),
		"high":  band.High.InexactFloat64(),
		"width": band.Width().InexactFloat64(),
		"mid":   band.Low.Add(band.High).Div(decimal.NewFromInt(2)).InexactFloat64(),
	}
	result, err := g.expr.Evaluate(params)
	if err != nil {
		return fmt.Errorf("offer guard: %w", err)
	}
	ok, isBool := result.(bool)
	if !isBool {
		return errors.New("offer guard did not evaluate to boolean")
	}
	if !ok {
		return fmt.Errorf("%w: %s is implausible for band %s-%s", negotiation.ErrInvalidOffer, value, band.Low, band.High)
	}
	return nil
}
