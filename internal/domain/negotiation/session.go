package negotiation

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/deadlock"
)

// Status represents the lifecycle state of a negotiation
type Status string

const (
	StatusInitiated         Status = "INITIATED"
	StatusActive            Status = "ACTIVE"
	StatusOfferPending      Status = "OFFER_PENDING"
	StatusCountered         Status = "COUNTERED"
	StatusDeadlocked        Status = "DEADLOCKED"
	StatusCompromiseOffered Status = "COMPROMISE_OFFERED"
	StatusAgreed            Status = "AGREED"
	StatusExpired           Status = "EXPIRED"
	StatusCancelled         Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusInitiated:         {StatusActive, StatusCancelled},
	StatusActive:            {StatusOfferPending, StatusCountered, StatusCancelled, StatusExpired},
	StatusOfferPending:      {StatusCountered, StatusAgreed, StatusDeadlocked, StatusCancelled, StatusExpired},
	StatusCountered:         {StatusCountered, StatusAgreed, StatusDeadlocked, StatusCancelled, StatusExpired},
	StatusDeadlocked:        {StatusCompromiseOffered, StatusCancelled, StatusExpired},
	StatusCompromiseOffered: {StatusAgreed, StatusCountered, StatusCancelled, StatusExpired},
	StatusAgreed:            {},
	StatusExpired:           {},
	StatusCancelled:         {},
}

// CanTransitionTo checks if a transition to the target status is valid
func (s Status) CanTransitionTo(target Status) bool {
	return slices.Contains(transitions[s], target)
}

// IsTerminal returns true for AGREED, EXPIRED and CANCELLED
func (s Status) IsTerminal() bool {
	return s == StatusAgreed || s == StatusExpired || s == StatusCancelled
}

// CompromiseSuggestion is the engine's proposed settlement after a stall.
type CompromiseSuggestion struct {
	Value       decimal.Decimal `json:"value"`
	Rationale   string          `json:"rationale"`
	GeneratedAt time.Time       `json:"generatedAt"`
	BasedOnSeq  int64           `json:"basedOnSeq"`
}

// Session is the state of one negotiation, derived entirely from its ledger.
type Session struct {
	ID        uuid.UUID `json:"id"`
	BuyerID   string    `json:"buyerId"`
	VendorID  string    `json:"vendorId"`
	ProductID string    `json:"productId"`
	Terms     Terms     `json:"terms"`
	Status    Status    `json:"status"`

	CurrentOffer *decimal.Decimal      `json:"currentOffer,omitempty"`
	CounterOffer *decimal.Decimal      `json:"counterOffer,omitempty"`
	BuyerOffer   *decimal.Decimal      `json:"buyerOffer,omitempty"`
	VendorOffer  *decimal.Decimal      `json:"vendorOffer,omitempty"`
	LastOfferBy  Actor                 `json:"lastOfferBy,omitempty"`
	AgreedValue  *decimal.Decimal      `json:"agreedValue,omitempty"`
	Suggestion   *CompromiseSuggestion `json:"suggestion,omitempty"`
	DetectFrom   int64                 `json:"detectFrom,omitempty"`

	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	LastSeq        int64     `json:"lastSeq"`
	ChainHead      string    `json:"chainHead,omitempty"`

	quotes []deadlock.Quote
}

// New returns an empty session waiting for its open event.
func New(id uuid.UUID) *Session {
	return &Session{ID: id, Status: StatusInitiated}
}

// IsExpired reports whether the inactivity window has elapsed at now.
func (s *Session) IsExpired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return now.After(s.ExpiresAt)
}

// PartyID returns the external id of the given side.
func (s *Session) PartyID(a Actor) string {
	switch a {
	case ActorBuyer:
		return s.BuyerID
	case ActorVendor:
		return s.VendorID
	default:
		return ""
	}
}

// ActorFor resolves a party id to its side in this session.
func (s *Session) ActorFor(partyID string) (Actor, bool) {
	switch partyID {
	case s.BuyerID:
		return ActorBuyer, true
	case s.VendorID:
		return ActorVendor, true
	default:
		return "", false
	}
}

// Quotes returns the value-bearing history used by the deadlock detector.
func (s *Session) Quotes() []deadlock.Quote {
	return slices.Clone(s.quotes)
}

// Clone returns a deep copy safe to hand to readers.
func (s *Session) Clone() *Session {
	c := *s
	c.CurrentOffer = cloneDecimal(s.CurrentOffer)
	c.CounterOffer = cloneDecimal(s.CounterOffer)
	c.BuyerOffer = cloneDecimal(s.BuyerOffer)
	c.VendorOffer = cloneDecimal(s.VendorOffer)
	c.AgreedValue = cloneDecimal(s.AgreedValue)
	if s.Suggestion != nil {
		sg := *s.Suggestion
		c.Suggestion = &sg
	}
	if s.Terms.Band != nil {
		b := *s.Terms.Band
		c.Terms.Band = &b
	}
	c.quotes = slices.Clone(s.quotes)
	return &c
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
