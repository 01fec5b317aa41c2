package bolt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/negotiation"
)

// Ledger stores each session's events in its own nested bucket keyed by
// big-endian seq, so cursor order is ledger order.
type Ledger struct {
	db *bbolt.DB
}

var _ negotiation.Ledger = (*Ledger)(nil)

func NewLedger(db *bbolt.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Append(ctx context.Context, e *negotiation.OfferEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return l.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketEvents)
		b, err := root.CreateBucketIfNotExists(e.SessionID[:])
		if err != nil {
			return err
		}
		var head uint64
		if k, _ := b.Cursor().Last(); k != nil {
			head = btoi(k)
		}
		if e.Seq < 1 || uint64(e.Seq) != head+1 {
			return fmt.Errorf("%w: expected seq %d, got %d", negotiation.ErrSequenceConflict, head+1, e.Seq)
		}
		if head == 0 {
			idx := tx.Bucket(bucketSessions)
			n, err := idx.NextSequence()
			if err != nil {
				return err
			}
			if err := idx.Put(itob(n), e.SessionID[:]); err != nil {
				return err
			}
		}
		return b.Put(itob(uint64(e.Seq)), data)
	})
}

func (l *Ledger) History(ctx context.Context, sessionID uuid.UUID) ([]*negotiation.OfferEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*negotiation.OfferEvent
	err := l.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEvents).Bucket(sessionID[:])
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var e negotiation.OfferEvent
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("failed to decode event: %w", err)
			}
			out = append(out, &e)
			return nil
		})
	})
	return out, err
}

func (l *Ledger) Sessions(ctx context.Context) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []uuid.UUID
	err := l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEach(func(_, v []byte) error {
			id, err := uuid.FromBytes(v)
			if err != nil {
				return err
			}
			out = append(out, id)
			return nil
		})
	})
	return out, err
}
