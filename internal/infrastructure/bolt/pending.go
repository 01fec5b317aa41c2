package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/notification"
)

// PendingStore keeps parked deliveries keyed by delivery key.
type PendingStore struct {
	db *bbolt.DB
}

var _ notification.PendingStore = (*PendingStore)(nil)

func NewPendingStore(db *bbolt.DB) *PendingStore {
	return &PendingStore{db: db}
}

func (s *PendingStore) Park(_ context.Context, d *notification.Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).Put([]byte(d.Key), data)
	})
}

func (s *PendingStore) ListPending(_ context.Context, recipient string) ([]*notification.Delivery, error) {
	var out []*notification.Delivery
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).ForEach(func(_, v []byte) error {
			var d notification.Delivery
			if err := json.Unmarshal(v, &d); err != nil {
				return fmt.Errorf("failed to decode delivery: %w", err)
			}
			if d.Recipient == recipient {
				out = append(out, &d)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (s *PendingStore) Ack(_ context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPending)
		if b.Get([]byte(key)) == nil {
			return notification.ErrDeliveryNotFound
		}
		return b.Delete([]byte(key))
	})
}
