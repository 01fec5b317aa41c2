package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/notification"
)

// PendingStore is a process-local notification.PendingStore.
type PendingStore struct {
	mu         sync.Mutex
	deliveries map[string]*notification.Delivery
}

var _ notification.PendingStore = (*PendingStore)(nil)

func NewPendingStore() *PendingStore {
	return &PendingStore{deliveries: make(map[string]*notification.Delivery)}
}

func (s *PendingStore) Park(_ context.Context, d *notification.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *d
	s.deliveries[d.Key] = &c
	return nil
}

func (s *PendingStore) ListPending(_ context.Context, recipient string) ([]*notification.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := lo.FilterMap(lo.Values(s.deliveries), func(d *notification.Delivery, _ int) (*notification.Delivery, bool) {
		if d.Recipient != recipient {
			return nil, false
		}
		c := *d
		return &c, true
	})
	slices.SortFunc(out, func(a, b *notification.Delivery) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out, nil
}

func (s *PendingStore) Ack(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[key]; !ok {
		return notification.ErrDeliveryNotFound
	}
	delete(s.deliveries, key)
	return nil
}
