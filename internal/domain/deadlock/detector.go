package deadlock

import (
	"github.com/shopspring/decimal"
)

// Reason explains the detector outcome.
type Reason string

const (
	ReasonStalled           Reason = "STALLED"
	ReasonNoBand            Reason = "NO_BAND"
	ReasonInsufficientPairs Reason = "INSUFFICIENT_PAIRS"
	ReasonConverging        Reason = "CONVERGING"
	ReasonGapBelowFloor     Reason = "GAP_BELOW_FLOOR"
)

// Side identifies which party produced a quote.
type Side string

const (
	SideBuyer  Side = "buyer"
	SideVendor Side = "vendor"
)

// Quote is one value-bearing event of a session, in ledger order.
type Quote struct {
	Seq   int64           `json:"seq"`
	Side  Side            `json:"side"`
	Value decimal.Decimal `json:"value"`
}

// Band is the fair-price range the thresholds are scaled by.
type Band struct {
	Low  decimal.Decimal `json:"low"`
	High decimal.Decimal `json:"high"`
}

// Width returns High-Low.
func (b Band) Width() decimal.Decimal {
	return b.High.Sub(b.Low)
}

// Policy holds the stall thresholds. Fractions are relative to the band width.
type Policy struct {
	Pairs          int     `json:"pairs"`
	MinImprovement float64 `json:"minImprovement"`
	GapFloor       float64 `json:"gapFloor"`
}

// DefaultPolicy returns K=3, 2% minimum improvement and a 5% gap floor.
func DefaultPolicy() Policy {
	return Policy{Pairs: 3, MinImprovement: 0.02, GapFloor: 0.05}
}

// Normalized returns DefaultPolicy for the zero Policy. Otherwise only
// out-of-range fields fall back to their default, so an explicit zero
// MinImprovement or GapFloor is kept.
func (p Policy) Normalized() Policy {
	def := DefaultPolicy()
	if p == (Policy{}) {
		return def
	}
	if p.Pairs < 2 {
		p.Pairs = def.Pairs
	}
	if p.MinImprovement < 0 {
		p.MinImprovement = def.MinImprovement
	}
	if p.GapFloor < 0 {
		p.GapFloor = def.GapFloor
	}
	return p
}

// Input is the slice of the ledger the detector looks at.
// Gaps produced by quotes with Seq <= Since are ignored.
type Input struct {
	Quotes []Quote
	Since  int64
	Band   *Band
}

// Result is the detector verdict plus the gap series it was based on.
type Result struct {
	Stalled bool              `json:"stalled"`
	Reason  Reason            `json:"reason"`
	Gaps    []decimal.Decimal `json:"gaps,omitempty"`
}

// Detect decides whether the negotiation has stalled. It never flags when no
// band is available. The floor is exclusive: a latest gap exactly equal to
// GapFloor*width still counts as stalled, only a smaller one is treated as
// close enough to settle.
func Detect(in Input, p Policy) Result {
	p = p.Normalized()
	if in.Band == nil || !in.Band.Width().IsPositive() {
		return Result{Reason: ReasonNoBand}
	}

	gaps := Gaps(in.Quotes, in.Since)
	if len(gaps) < p.Pairs {
		return Result{Reason: ReasonInsufficientPairs, Gaps: gaps}
	}

	width := in.Band.Width()
	minImprovement := width.Mul(decimal.NewFromFloat(p.MinImprovement))
	floor := width.Mul(decimal.NewFromFloat(p.GapFloor))

	window := gaps[len(gaps)-p.Pairs:]
	for i := 1; i < len(window); i++ {
		improvement := window[i-1].Sub(window[i])
		if improvement.GreaterThanOrEqual(minImprovement) {
			return Result{Reason: ReasonConverging, Gaps: gaps}
		}
	}
	if window[len(window)-1].LessThan(floor) {
		return Result{Reason: ReasonGapBelowFloor, Gaps: gaps}
	}
	return Result{Stalled: true, Reason: ReasonStalled, Gaps: gaps}
}

// Gaps returns the distance between the two sides' latest quotes after every
// quote once both sides have spoken.
func Gaps(quotes []Quote, since int64) []decimal.Decimal {
	var (
		buyer, vendor       decimal.Decimal
		hasBuyer, hasVendor bool
		out                 []decimal.Decimal
	)
	for _, q := range quotes {
		switch q.Side {
		case SideBuyer:
			buyer, hasBuyer = q.Value, true
		case SideVendor:
			vendor, hasVendor = q.Value, true
		default:
			continue
		}
		if !hasBuyer || !hasVendor || q.Seq <= since {
			continue
		}
		out = append(out, vendor.Sub(buyer).Abs())
	}
	return out
}
