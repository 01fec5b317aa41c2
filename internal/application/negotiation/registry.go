package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/collaborator"
	"github.com/mandi-exchange/negotiation-hub/internal/domain/deadlock"
	"github.com/mandi-exchange/negotiation-hub/internal/domain/negotiation"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/metrics"
)

// DefaultLanguage is used when neither the party nor its region names one.
const DefaultLanguage = "hi"

// Config tunes the registry.
type Config struct {
	Window      time.Duration
	Policy      deadlock.Policy
	Timeouts    Timeouts
	SigningKey  []byte
	MailboxSize int
	// ArchiveTTL bounds how long closed session ids stay in memory. Older
	// ones are resolved from the ledger.
	ArchiveTTL time.Duration
}

// DefaultConfig returns a 24h window and the default deadlock policy.
func DefaultConfig() Config {
	return Config{
		Window:      24 * time.Hour,
		Policy:      deadlock.DefaultPolicy(),
		Timeouts:    DefaultTimeouts(),
		MailboxSize: 32,
		ArchiveTTL:  time.Hour,
	}
}

// StartInput opens a negotiation.
type StartInput struct {
	BuyerID        string
	VendorID       string
	ProductID      string
	Location       string
	QualityGrade   string
	BuyerLocation  string
	BuyerLanguage  string
	VendorLanguage string
	InitialOffer   *decimal.Decimal
	OpenedBy       negotiation.Actor
}

func (in StartInput) tuple() string {
	return tupleKey(in.BuyerID, in.VendorID, in.ProductID)
}

// tupleKey identifies the (buyer, vendor, product) slot a session occupies.
func tupleKey(buyerID, vendorID, productID string) string {
	return buyerID + "\x00" + vendorID + "\x00" + productID
}

func pairKey(buyerID, vendorID string) string {
	return buyerID + "\x00" + vendorID
}

// Registry owns every live session. Each one is driven by its own worker;
// the maps below are the only state shared between sessions.
type Registry struct {
	cfg     Config
	ledger  negotiation.Ledger
	machine *machine
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu         sync.RWMutex
	live       map[uuid.UUID]*worker
	openTuples map[string]uuid.UUID
	tuples     map[uuid.UUID]string
	archived   *cache.Cache
	pairs      map[string]int
	closed     bool
	wg         sync.WaitGroup
}

// NewRegistry creates a registry. notifier may be nil.
func NewRegistry(
	ledger negotiation.Ledger,
	collabs Collaborators,
	guard *Guard,
	notifier Notifier,
	m *metrics.Metrics,
	cfg Config,
	logger zerolog.Logger,
) *Registry {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = def.MailboxSize
	}
	if cfg.ArchiveTTL <= 0 {
		cfg.ArchiveTTL = def.ArchiveTTL
	}
	if cfg.Timeouts.Translation <= 0 {
		cfg.Timeouts.Translation = def.Timeouts.Translation
	}
	if cfg.Timeouts.PriceBand <= 0 {
		cfg.Timeouts.PriceBand = def.Timeouts.PriceBand
	}
	if cfg.Timeouts.Phrasing <= 0 {
		cfg.Timeouts.Phrasing = def.Timeouts.Phrasing
	}
	cfg.Policy = cfg.Policy.Normalized()
	if guard == nil {
		guard, _ = NewGuard("")
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}

	logger = logger.With().Str("service", "negotiation").Logger()
	return &Registry{
		cfg:    cfg,
		ledger: ledger,
		machine: &machine{
			ledger:     ledger,
			calls:      &softCaller{c: collabs, timeouts: cfg.Timeouts, metrics: m, logger: logger},
			guard:      guard,
			notifier:   notifier,
			signingKey: cfg.SigningKey,
			metrics:    m,
			clock:      time.Now,
			logger:     logger,
		},
		metrics:    m,
		logger:     logger,
		live:       make(map[uuid.UUID]*worker),
		openTuples: make(map[string]uuid.UUID),
		tuples:     make(map[uuid.UUID]string),
		archived:   cache.New(cfg.ArchiveTTL, 2*cfg.ArchiveTTL),
		pairs:      make(map[string]int),
	}
}

// SetClock replaces the time source. Call before any session starts.
func (r *Registry) SetClock(clock func() time.Time) {
	r.machine.clock = clock
}

// Start opens a session for the (buyer, vendor, product) tuple.
func (r *Registry) Start(ctx context.Context, in StartInput) (*negotiation.Session, error) {
	in.BuyerID = strings.TrimSpace(in.BuyerID)
	in.VendorID = strings.TrimSpace(in.VendorID)
	in.ProductID = strings.TrimSpace(in.ProductID)
	if in.BuyerID == "" || in.VendorID == "" || in.ProductID == "" {
		return nil, fmt.Errorf("%w: buyer, vendor and product are required", negotiation.ErrInvalidActor)
	}
	if in.BuyerID == in.VendorID {
		return nil, fmt.Errorf("%w: buyer and vendor must differ", negotiation.ErrInvalidActor)
	}
	for _, lang := range []string{in.BuyerLanguage, in.VendorLanguage} {
		if lang != "" && !collaborator.IsSupportedLanguage(lang) {
			return nil, fmt.Errorf("%w: %q", collaborator.ErrUnsupportedLanguage, lang)
		}
	}
	if in.InitialOffer != nil {
		if err := negotiation.CheckAmount(*in.InitialOffer); err != nil {
			return nil, err
		}
		if in.OpenedBy == "" {
			in.OpenedBy = negotiation.ActorBuyer
		}
		if !in.OpenedBy.IsParty() {
			return nil, fmt.Errorf("%w: opening offer needs a party", negotiation.ErrInvalidActor)
		}
	}

	id := uuid.New()
	if err := r.reserve(ctx, in.tuple(), id); err != nil {
		return nil, err
	}
	s, err := r.openSession(ctx, id, in)
	if err != nil {
		r.release(in.tuple(), id)
		r.metrics.CommandsRejected.WithLabelValues(reasonOf(err)).Inc()
		return nil, err
	}

	w := newWorker(s, r.machine, r.cfg.MailboxSize, r.retire)
	r.mu.Lock()
	r.live[id] = w
	r.pairs[pairKey(in.BuyerID, in.VendorID)]++
	r.mu.Unlock()
	r.spawn(w)

	r.metrics.SessionsStarted.Inc()
	r.logger.Info().
		Str("session_id", id.String()).
		Str("buyer_id", in.BuyerID).
		Str("vendor_id", in.VendorID).
		Str("product_id", in.ProductID).
		Bool("band", s.Terms.Band != nil).
		Msg("Negotiation started")
	return s.Clone(), nil
}

// reserve claims the tuple for id. A holder whose window has elapsed is
// expired first so the slot frees up even between sweeps.
func (r *Registry) reserve(ctx context.Context, tuple string, id uuid.UUID) error {
	for attempt := 0; ; attempt++ {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return ErrRegistryClosed
		}
		existing, ok := r.openTuples[tuple]
		if !ok {
			r.openTuples[tuple] = id
			r.tuples[id] = tuple
			r.mu.Unlock()
			return nil
		}
		holder := r.live[existing]
		r.mu.Unlock()

		if attempt > 0 || holder == nil || !r.expireIfDue(ctx, holder) {
			return fmt.Errorf("%w: session %s is still open", negotiation.ErrDuplicateSession, existing)
		}
	}
}

func (r *Registry) release(tuple string, id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.openTuples[tuple] == id {
		delete(r.openTuples, tuple)
	}
	delete(r.tuples, id)
}

// openSession resolves the session terms and appends the open event.
func (r *Registry) openSession(ctx context.Context, id uuid.UUID, in StartInput) (*negotiation.Session, error) {
	now := r.machine.now()
	buyerLocation := in.BuyerLocation
	if buyerLocation == "" {
		buyerLocation = in.Location
	}

	var (
		band          *negotiation.PriceBand
		buyerProfile  *collaborator.RegionalProfile
		vendorProfile *collaborator.RegionalProfile
		g             errgroup.Group
	)
	calls := r.machine.calls
	g.Go(func() error {
		band = calls.band(ctx, collaborator.BandQuery{ProductID: in.ProductID, Location: in.Location, QualityGrade: in.QualityGrade}, now)
		return nil
	})
	g.Go(func() error {
		buyerProfile = calls.profile(ctx, buyerLocation)
		return nil
	})
	g.Go(func() error {
		vendorProfile = calls.profile(ctx, in.Location)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	relationship := negotiation.RelationshipFirstTime
	if r.pairs[pairKey(in.BuyerID, in.VendorID)] > 0 {
		relationship = negotiation.RelationshipRepeat
	}
	r.mu.RUnlock()

	terms := negotiation.Terms{
		Location:     in.Location,
		QualityGrade: in.QualityGrade,
		Band:         band,
		Context: negotiation.CulturalContext{
			RelationshipTag: relationship,
			Buyer:           partyProfile(buyerProfile, in.BuyerLanguage),
			Vendor:          partyProfile(vendorProfile, in.VendorLanguage),
		},
		Policy:        r.cfg.Policy,
		WindowSeconds: int64(r.cfg.Window / time.Second),
	}
	if vendorProfile != nil {
		terms.Context.RegionalTag = vendorProfile.Region
	}
	if in.InitialOffer != nil {
		if err := r.machine.guard.Check(*in.InitialOffer, band); err != nil {
			return nil, err
		}
	}

	e := &negotiation.OfferEvent{
		Seq:       1,
		EventID:   ulid.Make().String(),
		SessionID: id,
		Actor:     negotiation.ActorSystem,
		Kind:      negotiation.KindOpen,
		Opening: &negotiation.Opening{
			BuyerID:   in.BuyerID,
			VendorID:  in.VendorID,
			ProductID: in.ProductID,
			Terms:     terms,
		},
		Timestamp: r.machine.now(),
	}
	if in.InitialOffer != nil {
		v := *in.InitialOffer
		e.Actor = in.OpenedBy
		e.Value = &v
	}
	s, _, err := r.machine.commit(context.WithoutCancel(ctx), negotiation.New(id), e)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func partyProfile(p *collaborator.RegionalProfile, lang string) negotiation.PartyProfile {
	out := negotiation.PartyProfile{Language: lang}
	if p != nil {
		out.Region = p.Region
		out.Style = p.Style
		out.Greeting = p.Greeting
		if out.Language == "" && collaborator.IsSupportedLanguage(p.Language) {
			out.Language = p.Language
		}
	}
	if out.Language == "" {
		out.Language = DefaultLanguage
	}
	return out
}

func (r *Registry) spawn(w *worker) {
	r.metrics.LiveSessions.Inc()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		w.run()
	}()
}

// retire moves a terminal session out of the live set.
func (r *Registry) retire(id uuid.UUID, status negotiation.Status) {
	r.mu.Lock()
	if _, ok := r.live[id]; ok {
		delete(r.live, id)
		r.metrics.LiveSessions.Dec()
	}
	if tuple, ok := r.tuples[id]; ok {
		if r.openTuples[tuple] == id {
			delete(r.openTuples, tuple)
		}
		delete(r.tuples, id)
	}
	r.archived.SetDefault(id.String(), status)
	r.mu.Unlock()

	r.logger.Info().Str("session_id", id.String()).Str("status", string(status)).Msg("Negotiation closed")
}

func (r *Registry) lookup(ctx context.Context, id uuid.UUID) (*worker, error) {
	r.mu.RLock()
	w, ok := r.live[id]
	closed := r.closed
	r.mu.RUnlock()
	if ok {
		return w, nil
	}
	if st, ok := r.archivedStatus(ctx, id); ok && st == negotiation.StatusExpired {
		return nil, negotiation.ErrSessionExpired
	}
	if closed {
		return nil, ErrRegistryClosed
	}
	return nil, fmt.Errorf("%w: %s", negotiation.ErrSessionNotFound, id)
}

// archivedStatus reports the final status of a closed session. Ids that
// have aged out of memory are replayed from the ledger and cached again.
func (r *Registry) archivedStatus(ctx context.Context, id uuid.UUID) (negotiation.Status, bool) {
	if v, ok := r.archived.Get(id.String()); ok {
		return v.(negotiation.Status), true
	}
	events, err := r.ledger.History(ctx, id)
	if err != nil || len(events) == 0 {
		return "", false
	}
	s, err := negotiation.Replay(events)
	if err != nil || !s.Status.IsTerminal() {
		return "", false
	}
	r.archived.SetDefault(id.String(), s.Status)
	return s.Status, true
}

// expireIfDue closes a session whose window has elapsed through its worker
// and reports whether the session was due.
func (r *Registry) expireIfDue(ctx context.Context, w *worker) bool {
	if !w.Snapshot().IsExpired(r.machine.now()) {
		return false
	}
	if _, err := w.submit(ctx, Command{Actor: negotiation.ActorSystem}, true); err != nil && !errors.Is(err, negotiation.ErrSessionExpired) {
		r.logger.Warn().Err(err).Str("session_id", w.id.String()).Msg("Failed to expire session")
	}
	return true
}

// Get returns a snapshot of a live session. A session past its window is
// expired on the spot.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*negotiation.Session, error) {
	w, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.expireIfDue(ctx, w) {
		return nil, fmt.Errorf("%w: %s", negotiation.ErrSessionExpired, id)
	}
	return w.Snapshot().Clone(), nil
}

// List returns the live sessions a party takes part in, oldest first.
// Sessions past their window are expired and left out.
func (r *Registry) List(ctx context.Context, partyID string) []*negotiation.Session {
	r.mu.RLock()
	workers := lo.Values(r.live)
	r.mu.RUnlock()

	out := lo.FilterMap(workers, func(w *worker, _ int) (*negotiation.Session, bool) {
		s := w.Snapshot()
		if _, ok := s.ActorFor(partyID); !ok {
			return nil, false
		}
		if r.expireIfDue(ctx, w) {
			return nil, false
		}
		return s.Clone(), true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// History returns the ledger of any session, live or archived.
func (r *Registry) History(ctx context.Context, id uuid.UUID) ([]*negotiation.OfferEvent, error) {
	events, err := r.ledger.History(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", negotiation.ErrSessionNotFound, id)
	}
	return events, nil
}

// Verify checks the hash chain of a session's ledger.
func (r *Registry) Verify(ctx context.Context, id uuid.UUID) (negotiation.ChainReport, error) {
	events, err := r.History(ctx, id)
	if err != nil {
		return negotiation.ChainReport{}, err
	}
	return negotiation.VerifyChain(events, r.cfg.SigningKey), nil
}

// Dispatch routes cmd to the session's worker and waits for the outcome.
// Cancel aborts collaborator calls already queued for the session.
func (r *Registry) Dispatch(ctx context.Context, id uuid.UUID, cmd Command) (*Outcome, error) {
	w, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if cmd.Kind == CommandCancel {
		w.abort()
	}
	return w.submit(ctx, cmd, false)
}

func (r *Registry) SubmitOffer(ctx context.Context, id uuid.UUID, actor negotiation.Actor, value decimal.Decimal, note string) (*Outcome, error) {
	return r.Dispatch(ctx, id, OfferCommand(actor, value, note))
}

func (r *Registry) SubmitMessage(ctx context.Context, id uuid.UUID, actor negotiation.Actor, text string) (*Outcome, error) {
	return r.Dispatch(ctx, id, MessageCommand(actor, text))
}

func (r *Registry) Accept(ctx context.Context, id uuid.UUID, actor negotiation.Actor, refSeq int64) (*Outcome, error) {
	return r.Dispatch(ctx, id, AcceptCommand(actor, refSeq))
}

func (r *Registry) Reject(ctx context.Context, id uuid.UUID, actor negotiation.Actor, refSeq int64) (*Outcome, error) {
	return r.Dispatch(ctx, id, RejectCommand(actor, refSeq))
}

func (r *Registry) Cancel(ctx context.Context, id uuid.UUID, actor negotiation.Actor) (*Outcome, error) {
	return r.Dispatch(ctx, id, CancelCommand(actor))
}

// SweepExpired expires every live session whose window has elapsed and
// returns how many it expired.
func (r *Registry) SweepExpired(ctx context.Context) int {
	now := r.machine.now()
	r.mu.RLock()
	due := lo.Filter(lo.Values(r.live), func(w *worker, _ int) bool {
		return w.Snapshot().IsExpired(now)
	})
	r.mu.RUnlock()

	expired := 0
	for _, w := range due {
		out, err := w.submit(ctx, Command{Actor: negotiation.ActorSystem}, true)
		switch {
		case err != nil && !errors.Is(err, negotiation.ErrSessionExpired):
			r.logger.Warn().Err(err).Str("session_id", w.id.String()).Msg("Failed to expire session")
		case out != nil:
			expired++
		}
	}
	if expired > 0 {
		r.logger.Info().Int("count", expired).Msg("Expired idle negotiations")
	}
	return expired
}

// Recover rebuilds sessions from the ledger. Live ones get a worker again;
// finished ones are archived.
func (r *Registry) Recover(ctx context.Context) error {
	ids, err := r.ledger.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	restored := 0
	for _, id := range ids {
		r.mu.RLock()
		_, known := r.live[id]
		_, done := r.archived.Get(id.String())
		r.mu.RUnlock()
		if known || done {
			continue
		}

		events, err := r.ledger.History(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load session %s: %w", id, err)
		}
		s, err := negotiation.Replay(events)
		if err != nil {
			r.logger.Error().Err(err).Str("session_id", id.String()).Msg("Skipping unreplayable session")
			continue
		}
		if report := negotiation.VerifyChain(events, r.cfg.SigningKey); !report.Valid {
			r.logger.Warn().Str("session_id", id.String()).Int("breaks", len(report.Breaks)).Msg("Ledger chain does not verify")
		}

		r.mu.Lock()
		r.pairs[pairKey(s.BuyerID, s.VendorID)]++
		if s.Status.IsTerminal() {
			r.archived.SetDefault(id.String(), s.Status)
			r.mu.Unlock()
			continue
		}
		tuple := tupleKey(s.BuyerID, s.VendorID, s.ProductID)
		w := newWorker(s, r.machine, r.cfg.MailboxSize, r.retire)
		r.live[id] = w
		r.openTuples[tuple] = id
		r.tuples[id] = tuple
		r.mu.Unlock()
		r.spawn(w)
		restored++
	}
	r.logger.Info().Int("sessions", len(ids)).Int("live", restored).Msg("Registry recovered from ledger")
	return nil
}

// Close stops accepting commands, drains queued ones and waits for workers.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	workers := lo.Values(r.live)
	r.mu.Unlock()

	for _, w := range workers {
		w.stop()
	}
	r.wg.Wait()
}
