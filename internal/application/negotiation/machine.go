package negotiation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/collaborator"
	"github.com/mandi-exchange/negotiation-hub/internal/domain/negotiation"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/metrics"
)

// Negotiation phases handed to the phrasing advisor.
const (
	phaseOpening    = "opening"
	phaseBargaining = "bargaining"
	phaseCompromise = "compromise"
)

// machine turns commands into sealed ledger entries. Only the worker that owns
// a session calls it, so it never sees the same session concurrently.
type machine struct {
	ledger     negotiation.Ledger
	calls      *softCaller
	guard      *Guard
	notifier   Notifier
	signingKey []byte
	metrics    *metrics.Metrics
	clock      func() time.Time
	logger     zerolog.Logger
}

func (m *machine) now() time.Time {
	return negotiation.NormalizeTime(m.clock())
}

// handle runs cmd against s. It returns the session to keep, which is s
// itself whenever nothing was appended.
func (m *machine) handle(ctx context.Context, s *negotiation.Session, cmd Command) (*negotiation.Session, *Outcome, error) {
	if s.Status.IsTerminal() {
		return s, nil, terminalError(s.Status)
	}
	if s.IsExpired(m.now()) {
		return m.expireNow(ctx, s)
	}

	e, err := m.draft(s, cmd)
	if err != nil {
		m.rejected(s, cmd, err)
		return s, nil, err
	}
	e.Timestamp = m.now()
	if err := s.Validate(e); err != nil {
		if errors.Is(err, negotiation.ErrSessionExpired) {
			return m.expireNow(ctx, s)
		}
		m.rejected(s, cmd, err)
		return s, nil, err
	}
	if e.ValueBearing() {
		if err := m.guard.Check(*e.Value, s.Terms.Band); err != nil {
			m.rejected(s, cmd, err)
			return s, nil, err
		}
	}

	m.enrich(ctx, s, e)
	e.Timestamp = m.now()

	next, out, err := m.commit(context.WithoutCancel(ctx), s, e)
	if errors.Is(err, negotiation.ErrSessionExpired) {
		return m.expireNow(ctx, s)
	}
	if err != nil {
		m.rejected(s, cmd, err)
		return s, nil, err
	}
	return next, out, nil
}

func (m *machine) draft(s *negotiation.Session, cmd Command) (*negotiation.OfferEvent, error) {
	e := &negotiation.OfferEvent{
		Seq:       s.LastSeq + 1,
		EventID:   ulid.Make().String(),
		SessionID: s.ID,
		Actor:     cmd.Actor,
		RefSeq:    cmd.RefSeq,
		Text:      cmd.Text,
	}
	switch cmd.Kind {
	case CommandOffer:
		if cmd.Value == nil {
			return nil, fmt.Errorf("%w: value is required", negotiation.ErrInvalidOffer)
		}
		v := *cmd.Value
		e.Kind = s.NextOfferKind()
		e.Value = &v
	case CommandMessage:
		if cmd.Text == "" {
			return nil, fmt.Errorf("%w: message text is required", negotiation.ErrInvalidTransition)
		}
		e.Kind = negotiation.KindMessage
	case CommandAccept:
		e.Kind = negotiation.KindAccept
		e.Value = s.AgreedValueFor()
		e.Text = ""
	case CommandReject:
		e.Kind = negotiation.KindReject
		e.Text = ""
	case CommandCancel:
		e.Kind = negotiation.KindCancel
		e.Text = ""
	default:
		return nil, fmt.Errorf("%w: unknown command %q", negotiation.ErrInvalidTransition, cmd.Kind)
	}
	return e, nil
}

// enrich translates and phrases the event text for the counterpart. Both
// calls run concurrently and are joined before the event is sealed.
func (m *machine) enrich(ctx context.Context, s *negotiation.Session, e *negotiation.OfferEvent) {
	if e.Text == "" || !e.Actor.IsParty() {
		return
	}
	recipient := e.Actor.Counterpart()
	e.SourceLang = s.Terms.LanguageOf(e.Actor)
	e.TargetLang = s.Terms.LanguageOf(recipient)
	market := collaborator.MarketContext{ProductID: s.ProductID, Location: s.Terms.Location, QualityGrade: s.Terms.QualityGrade}

	var (
		tr      translated
		adapted *collaborator.AdaptedMessage
		g       errgroup.Group
	)
	g.Go(func() error {
		tr = m.calls.translate(ctx, e.Text, e.SourceLang, e.TargetLang, market)
		return nil
	})
	g.Go(func() error {
		adapted = m.calls.adapt(ctx, collaborator.AdaptRequest{
			Text:         e.Text,
			Sender:       regionalProfile(s.Terms.ProfileOf(e.Actor)),
			Receiver:     regionalProfile(s.Terms.ProfileOf(recipient)),
			Phase:        phaseOf(s),
			Relationship: s.Terms.Context.RelationshipTag,
		})
		return nil
	})
	_ = g.Wait()

	e.TranslationFailed = tr.Failed
	e.TranslationConfidence = tr.Confidence
	if !tr.Failed && e.SourceLang != e.TargetLang {
		e.TranslatedText = tr.Text
	}
	if adapted != nil {
		e.Phrasing = adapted.Text
		e.StyleTag = adapted.StyleTag
	}
}

// commit seals e, applies it to a copy of s and appends it. s is untouched
// unless both succeed.
func (m *machine) commit(ctx context.Context, s *negotiation.Session, e *negotiation.OfferEvent) (*negotiation.Session, *Outcome, error) {
	if err := e.Seal(s.ChainHead, m.signingKey); err != nil {
		return s, nil, err
	}
	next := s.Clone()
	tr, err := next.Apply(e)
	if err != nil {
		return s, nil, err
	}
	if err := m.ledger.Append(ctx, e); err != nil {
		return s, nil, fmt.Errorf("failed to append seq %d: %w", e.Seq, err)
	}

	m.metrics.EventsAppended.WithLabelValues(string(e.Kind)).Inc()
	if tr.Suggestion != nil {
		m.metrics.Deadlocks.Inc()
	}
	log := m.logger.Info()
	if e.Kind == negotiation.KindMessage {
		log = m.logger.Debug()
	}
	log.Str("session_id", e.SessionID.String()).
		Int64("seq", e.Seq).
		Str("kind", string(e.Kind)).
		Str("actor", string(e.Actor)).
		Str("status", string(next.Status)).
		Msg("Event appended")

	m.notifier.Enqueue(buildDeliveries(next, e, tr)...)
	return next, &Outcome{Session: next.Clone(), Event: e, Transition: tr}, nil
}

// expireNow appends the expire entry and reports ErrSessionExpired.
func (m *machine) expireNow(ctx context.Context, s *negotiation.Session) (*negotiation.Session, *Outcome, error) {
	next, _, err := m.expire(ctx, s)
	if err != nil {
		return s, nil, err
	}
	return next, nil, negotiation.ErrSessionExpired
}

func (m *machine) expire(ctx context.Context, s *negotiation.Session) (*negotiation.Session, *Outcome, error) {
	e := &negotiation.OfferEvent{
		Seq:       s.LastSeq + 1,
		EventID:   ulid.Make().String(),
		SessionID: s.ID,
		Actor:     negotiation.ActorSystem,
		Kind:      negotiation.KindExpire,
		Timestamp: m.now(),
	}
	return m.commit(context.WithoutCancel(ctx), s, e)
}

func (m *machine) rejected(s *negotiation.Session, cmd Command, err error) {
	reason := reasonOf(err)
	m.metrics.CommandsRejected.WithLabelValues(reason).Inc()
	m.logger.Debug().
		Err(err).
		Str("session_id", s.ID.String()).
		Str("command", string(cmd.Kind)).
		Str("actor", string(cmd.Actor)).
		Str("reason", reason).
		Msg("Command rejected")
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, negotiation.ErrInvalidOffer):
		return "invalid_offer"
	case errors.Is(err, negotiation.ErrOutOfTurn):
		return "out_of_turn"
	case errors.Is(err, negotiation.ErrSessionExpired):
		return "expired"
	case errors.Is(err, negotiation.ErrInvalidActor):
		return "invalid_actor"
	case errors.Is(err, negotiation.ErrSequenceConflict):
		return "sequence_conflict"
	case errors.Is(err, negotiation.ErrDuplicateSession):
		return "duplicate"
	case errors.Is(err, negotiation.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "other"
	}
}

func terminalError(st negotiation.Status) error {
	if st == negotiation.StatusExpired {
		return negotiation.ErrSessionExpired
	}
	return fmt.Errorf("%w: session is %s", negotiation.ErrInvalidTransition, st)
}

func phaseOf(s *negotiation.Session) string {
	switch {
	case s.CurrentOffer == nil:
		return phaseOpening
	case s.Status == negotiation.StatusCompromiseOffered || s.Status == negotiation.StatusDeadlocked:
		return phaseCompromise
	default:
		return phaseBargaining
	}
}

func regionalProfile(p negotiation.PartyProfile) collaborator.RegionalProfile {
	return collaborator.RegionalProfile{Region: p.Region, Language: p.Language, Style: p.Style, Greeting: p.Greeting}
}
