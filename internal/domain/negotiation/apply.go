package negotiation

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/deadlock"
)

// Transition describes what applying one event did to a session.
type Transition struct {
	From       Status                `json:"from"`
	To         Status                `json:"to"`
	Path       []Status              `json:"path,omitempty"`
	Suggestion *CompromiseSuggestion `json:"suggestion,omitempty"`
	Detection  *deadlock.Result      `json:"detection,omitempty"`
}

// Changed reports whether the status moved.
func (t Transition) Changed() bool {
	return len(t.Path) > 0
}

func (t *Transition) enter(s *Session, next Status) error {
	if s.Status == next {
		return nil
	}
	if !s.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	}
	s.Status = next
	t.Path = append(t.Path, next)
	t.To = next
	return nil
}

// Validate checks whether e would be accepted without changing the session.
func (s *Session) Validate(e *OfferEvent) error {
	_, err := s.Clone().apply(e)
	return err
}

// Apply folds e into the session. On error the session is unchanged.
func (s *Session) Apply(e *OfferEvent) (Transition, error) {
	next := s.Clone()
	tr, err := next.apply(e)
	if err != nil {
		return Transition{}, err
	}
	*s = *next
	return tr, nil
}

func (s *Session) apply(e *OfferEvent) (Transition, error) {
	tr := Transition{From: s.Status, To: s.Status}

	if e == nil {
		return tr, fmt.Errorf("%w: nil event", ErrInvalidTransition)
	}
	if e.Seq != s.LastSeq+1 {
		return tr, fmt.Errorf("%w: expected seq %d, got %d", ErrSequenceConflict, s.LastSeq+1, e.Seq)
	}
	if e.Kind != KindOpen && e.SessionID != s.ID {
		return tr, fmt.Errorf("%w: event for session %s", ErrInvalidTransition, e.SessionID)
	}
	if s.Status == StatusExpired {
		return tr, ErrSessionExpired
	}
	if s.Status.IsTerminal() {
		return tr, fmt.Errorf("%w: session is %s", ErrInvalidTransition, s.Status)
	}
	if e.Kind != KindExpire && e.Kind != KindOpen && s.IsExpired(e.Timestamp) {
		return tr, ErrSessionExpired
	}

	var err error
	switch e.Kind {
	case KindOpen:
		err = s.applyOpen(e, &tr)
	case KindOffer, KindCounterOffer:
		err = s.applyOffer(e, &tr)
	case KindMessage:
		err = s.applyMessage(e)
	case KindAccept:
		err = s.applyAccept(e, &tr)
	case KindReject:
		err = s.applyReject(e, &tr)
	case KindCancel:
		err = s.applyCancel(e, &tr)
	case KindExpire:
		err = s.applyExpire(e, &tr)
	default:
		err = fmt.Errorf("%w: unknown kind %q", ErrInvalidTransition, e.Kind)
	}
	if err != nil {
		return tr, err
	}

	s.LastSeq = e.Seq
	s.LastActivityAt = e.Timestamp
	if !s.Status.IsTerminal() {
		s.ExpiresAt = e.Timestamp.Add(s.Terms.Window())
	}
	s.ChainHead = e.ChainHash
	return tr, nil
}

func (s *Session) applyOpen(e *OfferEvent, tr *Transition) error {
	if s.Status != StatusInitiated || e.Seq != 1 {
		return fmt.Errorf("%w: open must be the first event", ErrInvalidTransition)
	}
	if e.Opening == nil {
		return fmt.Errorf("%w: open event without terms", ErrInvalidTransition)
	}
	if e.Opening.BuyerID == "" || e.Opening.VendorID == "" || e.Opening.ProductID == "" {
		return fmt.Errorf("%w: buyer, vendor and product are required", ErrInvalidTransition)
	}
	if e.Opening.BuyerID == e.Opening.VendorID {
		return fmt.Errorf("%w: buyer and vendor must differ", ErrInvalidActor)
	}
	if e.Value != nil {
		if !e.Actor.IsParty() {
			return fmt.Errorf("%w: opening offer needs a party", ErrInvalidActor)
		}
		if err := CheckAmount(*e.Value); err != nil {
			return err
		}
	}

	if e.SessionID != uuid.Nil {
		s.ID = e.SessionID
	}
	s.BuyerID = e.Opening.BuyerID
	s.VendorID = e.Opening.VendorID
	s.ProductID = e.Opening.ProductID
	s.Terms = e.Opening.Terms
	s.CreatedAt = e.Timestamp
	if err := tr.enter(s, StatusActive); err != nil {
		return err
	}
	if e.Value != nil {
		s.recordQuote(e)
	}
	return nil
}

// NextOfferKind returns the kind an offer submitted now must carry.
func (s *Session) NextOfferKind() Kind {
	if s.CurrentOffer == nil {
		return KindOffer
	}
	return KindCounterOffer
}

func (s *Session) applyOffer(e *OfferEvent, tr *Transition) error {
	if !e.Actor.IsParty() {
		return fmt.Errorf("%w: offers come from buyer or vendor", ErrInvalidActor)
	}
	switch s.Status {
	case StatusActive, StatusOfferPending, StatusCountered:
	default:
		return fmt.Errorf("%w: cannot offer while %s", ErrInvalidTransition, s.Status)
	}
	if e.Value == nil {
		return fmt.Errorf("%w: value is required", ErrInvalidOffer)
	}
	if err := CheckAmount(*e.Value); err != nil {
		return err
	}
	if s.LastOfferBy == e.Actor {
		return fmt.Errorf("%w: %s made the last offer", ErrOutOfTurn, e.Actor)
	}
	if e.Kind != s.NextOfferKind() {
		return fmt.Errorf("%w: expected %s, got %s", ErrInvalidOffer, s.NextOfferKind(), e.Kind)
	}

	next := StatusCountered
	if s.Status == StatusActive {
		next = StatusOfferPending
	}
	if err := tr.enter(s, next); err != nil {
		return err
	}
	s.recordQuote(e)
	return s.escalate(e, tr)
}

// escalate consults the deadlock detector and, on a stall, moves through
// DEADLOCKED to COMPROMISE_OFFERED in the same step.
func (s *Session) escalate(e *OfferEvent, tr *Transition) error {
	res := deadlock.Detect(deadlock.Input{
		Quotes: s.quotes,
		Since:  s.DetectFrom,
		Band:   s.Terms.Band.detectorBand(),
	}, s.Terms.Policy)
	tr.Detection = &res
	if !res.Stalled {
		return nil
	}
	if err := tr.enter(s, StatusDeadlocked); err != nil {
		return err
	}
	sg := Suggest(s, e.Seq, e.Timestamp)
	if sg == nil {
		return nil
	}
	s.Suggestion = sg
	tr.Suggestion = sg
	return tr.enter(s, StatusCompromiseOffered)
}

func (s *Session) applyMessage(e *OfferEvent) error {
	if !e.Actor.IsParty() {
		return fmt.Errorf("%w: messages come from buyer or vendor", ErrInvalidActor)
	}
	if e.Value != nil {
		return fmt.Errorf("%w: messages carry no value", ErrInvalidOffer)
	}
	return nil
}

func (s *Session) checkResponder(e *OfferEvent) error {
	if !e.Actor.IsParty() {
		return fmt.Errorf("%w: only buyer or vendor can respond", ErrInvalidActor)
	}
	switch s.Status {
	case StatusOfferPending, StatusCountered, StatusCompromiseOffered:
	default:
		return fmt.Errorf("%w: nothing to respond to while %s", ErrInvalidTransition, s.Status)
	}
	if s.LastOfferBy == e.Actor {
		return fmt.Errorf("%w: %s cannot respond to its own offer", ErrOutOfTurn, e.Actor)
	}
	if s.Status == StatusCompromiseOffered && e.RefSeq != 0 && s.Suggestion != nil && e.RefSeq != s.Suggestion.BasedOnSeq {
		return fmt.Errorf("%w: suggestion %d is not outstanding", ErrInvalidTransition, e.RefSeq)
	}
	return nil
}

// AgreedValueFor returns the value an accept issued now would settle on.
func (s *Session) AgreedValueFor() *decimal.Decimal {
	if s.Status == StatusCompromiseOffered && s.Suggestion != nil {
		v := s.Suggestion.Value
		return &v
	}
	return cloneDecimal(s.CurrentOffer)
}

func (s *Session) applyAccept(e *OfferEvent, tr *Transition) error {
	if err := s.checkResponder(e); err != nil {
		return err
	}
	agreed := s.AgreedValueFor()
	if agreed == nil {
		return fmt.Errorf("%w: no value on the table", ErrInvalidTransition)
	}
	if e.Value != nil && !e.Value.Equal(*agreed) {
		return fmt.Errorf("%w: accepted value %s does not match %s", ErrInvalidOffer, e.Value, agreed)
	}
	if err := tr.enter(s, StatusAgreed); err != nil {
		return err
	}
	s.AgreedValue = agreed
	return nil
}

func (s *Session) applyReject(e *OfferEvent, tr *Transition) error {
	if err := s.checkResponder(e); err != nil {
		return err
	}
	if s.Status != StatusCompromiseOffered {
		return nil
	}
	if err := tr.enter(s, StatusCountered); err != nil {
		return err
	}
	s.Suggestion = nil
	s.DetectFrom = e.Seq
	return nil
}

func (s *Session) applyCancel(e *OfferEvent, tr *Transition) error {
	if e.Actor != ActorBuyer && e.Actor != ActorVendor && e.Actor != ActorSystem {
		return ErrInvalidActor
	}
	return tr.enter(s, StatusCancelled)
}

func (s *Session) applyExpire(e *OfferEvent, tr *Transition) error {
	if e.Actor != ActorSystem {
		return fmt.Errorf("%w: only the system expires sessions", ErrInvalidActor)
	}
	if s.Status == StatusInitiated {
		return fmt.Errorf("%w: session never opened", ErrInvalidTransition)
	}
	return tr.enter(s, StatusExpired)
}

func (s *Session) recordQuote(e *OfferEvent) {
	v := *e.Value
	if s.LastOfferBy != "" && s.LastOfferBy != e.Actor {
		s.CounterOffer = cloneDecimal(s.CurrentOffer)
	}
	s.CurrentOffer = &v
	s.LastOfferBy = e.Actor
	if e.Actor == ActorBuyer {
		s.BuyerOffer = cloneDecimal(&v)
	} else {
		s.VendorOffer = cloneDecimal(&v)
	}
	s.quotes = append(s.quotes, deadlock.Quote{Seq: e.Seq, Side: deadlock.Side(e.Actor), Value: v})
}

// Replay rebuilds a session from its ordered ledger.
func Replay(events []*OfferEvent) (*Session, error) {
	if len(events) == 0 {
		return nil, ErrSessionNotFound
	}
	s := New(events[0].SessionID)
	for _, e := range events {
		if _, err := s.Apply(e); err != nil {
			return nil, fmt.Errorf("replay seq %d: %w", e.Seq, err)
		}
	}
	return s, nil
}
