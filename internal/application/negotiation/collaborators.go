package negotiation

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/collaborator"
	"github.com/mandi-exchange/negotiation-hub/internal/domain/negotiation"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/metrics"
)

// Collaborator names used in logs and metrics.
const (
	collabTranslation = "translation"
	collabPriceBand   = "price_band"
	collabPhrasing    = "phrasing"
)

// Collaborators groups the external services a session consults. Any of them
// may be nil, which behaves like a service that always fails.
type Collaborators struct {
	Translator collaborator.TranslationGateway
	Oracle     collaborator.PriceBandOracle
	Advisor    collaborator.PhrasingAdvisor
}

// Timeouts bounds every collaborator call.
type Timeouts struct {
	Translation time.Duration
	PriceBand   time.Duration
	Phrasing    time.Duration
}

// DefaultTimeouts returns 2s translation, 5s price band and 2s phrasing.
func DefaultTimeouts() Timeouts {
	return Timeouts{Translation: 2 * time.Second, PriceBand: 5 * time.Second, Phrasing: 2 * time.Second}
}

// translated is what a message looks like after the gateway had its chance.
type translated struct {
	Text       string
	Confidence float64
	Failed     bool
}

// softCaller wraps every collaborator with one contract: bounded by a
// timeout, failures logged and counted, never returned as errors.
type softCaller struct {
	c        Collaborators
	timeouts Timeouts
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func (sc *softCaller) fail(name string, started time.Time, err error, ev *zerolog.Event) {
	sc.metrics.ObserveCollaborator(name, started, true)
	if errors.Is(err, context.DeadlineExceeded) {
		ev = ev.Bool("timeout", true)
	}
	ev.Err(err).Str("collaborator", name).Msg("Collaborator call failed, continuing without it")
}

func (sc *softCaller) translate(ctx context.Context, text, source, target string, market collaborator.MarketContext) translated {
	if text == "" {
		return translated{}
	}
	if source == target {
		return translated{Text: text, Confidence: 1.0}
	}
	if sc.c.Translator == nil {
		return translated{Text: text, Failed: true}
	}

	started := time.Now()
	cctx, cancel := context.WithTimeout(ctx, sc.timeouts.Translation)
	defer cancel()
	out, err := sc.c.Translator.Translate(cctx, collaborator.TranslationRequest{
		Text: text, SourceLang: source, TargetLang: target, Market: market,
	})
	if err != nil {
		sc.fail(collabTranslation, started, err, sc.logger.Warn().Str("source", source).Str("target", target))
		return translated{Text: text, Failed: true}
	}
	sc.metrics.ObserveCollaborator(collabTranslation, started, false)
	return translated{Text: out.Text, Confidence: out.Confidence}
}

func (sc *softCaller) band(ctx context.Context, q collaborator.BandQuery, at time.Time) *negotiation.PriceBand {
	if sc.c.Oracle == nil {
		return nil
	}
	started := time.Now()
	cctx, cancel := context.WithTimeout(ctx, sc.timeouts.PriceBand)
	defer cancel()
	b, err := sc.c.Oracle.GetBand(cctx, q)
	if err == nil && (b == nil || !b.Low.IsPositive() || b.High.LessThanOrEqual(b.Low)) {
		err = collaborator.ErrNoDataAvailable
	}
	if err != nil {
		ev := sc.logger.Info()
		if !errors.Is(err, collaborator.ErrNoDataAvailable) {
			ev = sc.logger.Warn()
		}
		sc.fail(collabPriceBand, started, err, ev.Str("product_id", q.ProductID))
		return nil
	}
	sc.metrics.ObserveCollaborator(collabPriceBand, started, false)
	return &negotiation.PriceBand{Low: b.Low, High: b.High, Confidence: b.Confidence, FetchedAt: at}
}

func (sc *softCaller) profile(ctx context.Context, location string) *collaborator.RegionalProfile {
	if sc.c.Advisor == nil {
		return nil
	}
	started := time.Now()
	cctx, cancel := context.WithTimeout(ctx, sc.timeouts.Phrasing)
	defer cancel()
	p, err := sc.c.Advisor.GetContext(cctx, location)
	if err != nil || p == nil {
		if err == nil {
			err = collaborator.ErrPhrasingUnavailable
		}
		sc.fail(collabPhrasing, started, err, sc.logger.Warn().Str("location", location))
		return nil
	}
	sc.metrics.ObserveCollaborator(collabPhrasing, started, false)
	return p
}

func (sc *softCaller) adapt(ctx context.Context, req collaborator.AdaptRequest) *collaborator.AdaptedMessage {
	if sc.c.Advisor == nil || req.Text == "" {
		return nil
	}
	started := time.Now()
	cctx, cancel := context.WithTimeout(ctx, sc.timeouts.Phrasing)
	defer cancel()
	out, err := sc.c.Advisor.Adapt(cctx, req)
	if err != nil || out == nil {
		if err == nil {
			err = collaborator.ErrPhrasingUnavailable
		}
		sc.fail(collabPhrasing, started, err, sc.logger.Warn())
		return nil
	}
	sc.metrics.ObserveCollaborator(collabPhrasing, started, false)
	return out
}
