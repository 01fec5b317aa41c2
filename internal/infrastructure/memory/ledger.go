package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/negotiation"
)

// Ledger is a process-local negotiation.Ledger.
type Ledger struct {
	mu     sync.RWMutex
	events map[uuid.UUID][]*negotiation.OfferEvent
	order  []uuid.UUID
}

var _ negotiation.Ledger = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{events: make(map[uuid.UUID][]*negotiation.OfferEvent)}
}

func (l *Ledger) Append(ctx context.Context, e *negotiation.OfferEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := l.events[e.SessionID]
	if want := int64(len(existing)) + 1; e.Seq != want {
		return fmt.Errorf("%w: expected seq %d, got %d", negotiation.ErrSequenceConflict, want, e.Seq)
	}
	if len(existing) == 0 {
		l.order = append(l.order, e.SessionID)
	}
	stored := *e
	l.events[e.SessionID] = append(existing, &stored)
	return nil
}

// History returns copies so callers cannot alter the stored entries.
func (l *Ledger) History(ctx context.Context, sessionID uuid.UUID) ([]*negotiation.OfferEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	stored := l.events[sessionID]
	out := make([]*negotiation.OfferEvent, len(stored))
	for i, e := range stored {
		c := *e
		out[i] = &c
	}
	return out, nil
}

func (l *Ledger) Sessions(ctx context.Context) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.order), nil
}
