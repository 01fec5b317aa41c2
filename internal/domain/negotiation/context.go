package negotiation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/deadlock"
)

// Relationship tags.
const (
	RelationshipFirstTime = "first_time"
	RelationshipRepeat    = "repeat"
)

// PriceBand is the fair-price range captured when the session opened.
type PriceBand struct {
	Low        decimal.Decimal `json:"low"`
	High       decimal.Decimal `json:"high"`
	Confidence float64         `json:"confidence"`
	FetchedAt  time.Time       `json:"fetchedAt"`
}

// Width returns High-Low.
func (b *PriceBand) Width() decimal.Decimal {
	return b.High.Sub(b.Low)
}

// Contains reports whether v lies inside [Low, High].
func (b *PriceBand) Contains(v decimal.Decimal) bool {
	return v.GreaterThanOrEqual(b.Low) && v.LessThanOrEqual(b.High)
}

// Clamp pulls v into the band.
func (b *PriceBand) Clamp(v decimal.Decimal) decimal.Decimal {
	if v.LessThan(b.Low) {
		return b.Low
	}
	if v.GreaterThan(b.High) {
		return b.High
	}
	return v
}

func (b *PriceBand) detectorBand() *deadlock.Band {
	if b == nil {
		return nil
	}
	return &deadlock.Band{Low: b.Low, High: b.High}
}

// PartyProfile is the regional profile of one side.
type PartyProfile struct {
	Region   string `json:"region"`
	Language string `json:"language"`
	Style    string `json:"style,omitempty"`
	Greeting string `json:"greeting,omitempty"`
}

// CulturalContext is resolved once at start and kept for the session lifetime.
type CulturalContext struct {
	RegionalTag     string       `json:"regionalTag"`
	RelationshipTag string       `json:"relationshipTag"`
	Buyer           PartyProfile `json:"buyer"`
	Vendor          PartyProfile `json:"vendor"`
}

// Terms is the snapshot every later decision of the session is made against.
type Terms struct {
	Location      string          `json:"location,omitempty"`
	QualityGrade  string          `json:"qualityGrade,omitempty"`
	Band          *PriceBand      `json:"band,omitempty"`
	Context       CulturalContext `json:"context"`
	Policy        deadlock.Policy `json:"policy"`
	WindowSeconds int64           `json:"windowSeconds"`
}

// Window returns the inactivity window.
func (t Terms) Window() time.Duration {
	return time.Duration(t.WindowSeconds) * time.Second
}

// LanguageOf returns the language the given party reads.
func (t Terms) LanguageOf(a Actor) string {
	switch a {
	case ActorBuyer:
		return t.Context.Buyer.Language
	case ActorVendor:
		return t.Context.Vendor.Language
	default:
		return ""
	}
}

// ProfileOf returns the regional profile of the given party.
func (t Terms) ProfileOf(a Actor) PartyProfile {
	if a == ActorVendor {
		return t.Context.Vendor
	}
	return t.Context.Buyer
}
