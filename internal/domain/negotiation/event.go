package negotiation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind is the type of a ledger entry.
type Kind string

const (
	KindOpen         Kind = "open"
	KindOffer        Kind = "offer"
	KindCounterOffer Kind = "counter_offer"
	KindMessage      Kind = "message"
	KindAccept       Kind = "accept"
	KindReject       Kind = "reject"
	KindCancel       Kind = "cancel"
	KindExpire       Kind = "expire"
)

// Actor is who produced an event.
type Actor string

const (
	ActorBuyer  Actor = "buyer"
	ActorVendor Actor = "vendor"
	ActorSystem Actor = "system"
)

// IsParty reports whether the actor is one of the two negotiating sides.
func (a Actor) IsParty() bool {
	return a == ActorBuyer || a == ActorVendor
}

// Counterpart returns the other side.
func (a Actor) Counterpart() Actor {
	switch a {
	case ActorBuyer:
		return ActorVendor
	case ActorVendor:
		return ActorBuyer
	default:
		return ""
	}
}

// ParseActor converts a wire value into an Actor.
func ParseActor(s string) (Actor, error) {
	switch Actor(s) {
	case ActorBuyer, ActorVendor, ActorSystem:
		return Actor(s), nil
	default:
		return "", ErrInvalidActor
	}
}

// Opening is carried by the first event of every session.
type Opening struct {
	BuyerID   string `json:"buyerId"`
	VendorID  string `json:"vendorId"`
	ProductID string `json:"productId"`
	Terms     Terms  `json:"terms"`
}

// OfferEvent is one immutable ledger entry.
type OfferEvent struct {
	Seq       int64     `json:"seq"`
	EventID   string    `json:"eventId"`
	SessionID uuid.UUID `json:"sessionId"`
	Actor     Actor     `json:"actor"`
	Kind      Kind      `json:"kind"`

	Value  *decimal.Decimal `json:"value,omitempty"`
	RefSeq int64            `json:"refSeq,omitempty"`

	Text                  string  `json:"text,omitempty"`
	TranslatedText        string  `json:"translatedText,omitempty"`
	SourceLang            string  `json:"sourceLang,omitempty"`
	TargetLang            string  `json:"targetLang,omitempty"`
	TranslationConfidence float64 `json:"translationConfidence,omitempty"`
	TranslationFailed     bool    `json:"translationFailed,omitempty"`
	StyleTag              string  `json:"styleTag,omitempty"`
	Phrasing              string  `json:"phrasing,omitempty"`

	Opening *Opening `json:"opening,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	PrevHash  string    `json:"prevHash,omitempty"`
	EventHash string    `json:"eventHash,omitempty"`
	ChainHash string    `json:"chainHash,omitempty"`
	Signature string    `json:"signature,omitempty"`
}

// ValueBearing reports whether the event puts a price on the table.
func (e *OfferEvent) ValueBearing() bool {
	switch e.Kind {
	case KindOpen, KindOffer, KindCounterOffer:
		return e.Value != nil
	default:
		return false
	}
}

// Delivered returns the text the counterpart should read.
func (e *OfferEvent) Delivered() string {
	if e.TranslatedText != "" {
		return e.TranslatedText
	}
	return e.Text
}

// Timestamp precision kept in the ledger.
const timestampPrecision = time.Microsecond

// NormalizeTime returns t in UTC at ledger precision.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(timestampPrecision)
}
