package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/notification"
	"github.com/mandi-exchange/negotiation-hub/internal/domain/notification/mocks"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/memory"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/metrics"
)

func testConfig() Config {
	return Config{
		Workers:         4,
		QueueSize:       64,
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		DedupeTTL:       time.Minute,
	}
}

func newTestDispatcher(t *testing.T, transport notification.Transport) (*Dispatcher, *memory.PendingStore) {
	t.Helper()
	pending := memory.NewPendingStore()
	d := NewDispatcher(transport, pending, metrics.New(), testConfig(), zerolog.Nop())
	d.Start()
	t.Cleanup(d.Stop)
	return d, pending
}

func newDelivery(session uuid.UUID, seq int64, recipient string) *notification.Delivery {
	ev, _ := notification.NewEvent(notification.EventStatusChanged, notification.StatusChanged{From: "ACTIVE", To: "OFFER_PENDING"})
	return notification.NewDelivery(session, seq, recipient, "buyer", []notification.Event{ev})
}

func TestDispatcher_DeliversWithRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	done := make(chan *notification.Delivery, 1)

	gomock.InOrder(
		transport.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(notification.ErrNotConnected),
		transport.EXPECT().Deliver(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, d *notification.Delivery) error {
				done <- d
				return nil
			}),
	)
	d, pending := newTestDispatcher(t, transport)

	d.Enqueue(newDelivery(uuid.New(), 2, "buyer-1"))

	select {
	case del := <-done:
		assert.Equal(t, 2, del.Attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery not pushed")
	}
	parked, err := pending.ListPending(context.Background(), "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, parked)
}

func TestDispatcher_ParksAfterRetriesExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	transport.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(errors.New("stream closed")).Times(3)
	d, pending := newTestDispatcher(t, transport)

	del := newDelivery(uuid.New(), 4, "vendor-1")
	d.Enqueue(del)

	var parked []*notification.Delivery
	require.Eventually(t, func() bool {
		var err error
		parked, err = pending.ListPending(context.Background(), "vendor-1")
		return err == nil && len(parked) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, del.Key, parked[0].Key)
	assert.Equal(t, notification.StatusParked, parked[0].Status)
	assert.Equal(t, 3, parked[0].Attempts)
	require.NotNil(t, parked[0].LastError)
	assert.Equal(t, "stream closed", *parked[0].LastError)
}

func TestDispatcher_DeduplicatesByKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	pushed := make(chan struct{}, 2)
	transport.EXPECT().Deliver(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, *notification.Delivery) error {
			pushed <- struct{}{}
			return nil
		}).Times(1)
	d, _ := newTestDispatcher(t, transport)

	session := uuid.New()
	d.Enqueue(newDelivery(session, 3, "buyer-1"))
	<-pushed
	require.Eventually(t, func() bool {
		_, ok := d.delivered.Get(notification.Key(session, 3, "buyer-1"))
		return ok
	}, time.Second, time.Millisecond)

	d.Enqueue(newDelivery(session, 3, "buyer-1"))
	d.Stop()
}

func TestDispatcher_PreservesOrderPerRecipient(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	var (
		mu   sync.Mutex
		seqs []int64
	)
	transport.EXPECT().Deliver(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d *notification.Delivery) error {
			mu.Lock()
			defer mu.Unlock()
			if d.Recipient == "buyer-1" {
				seqs = append(seqs, d.Seq)
			}
			return nil
		}).AnyTimes()
	d, _ := newTestDispatcher(t, transport)

	session := uuid.New()
	for seq := int64(1); seq <= 20; seq++ {
		d.Enqueue(newDelivery(session, seq, "buyer-1"), newDelivery(session, seq, "vendor-1"))
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seqs) == 20
	}, 2*time.Second, 5*time.Millisecond)

	for i, seq := range seqs {
		assert.Equal(t, int64(i+1), seq)
	}
}

func TestDispatcher_RedeliverAndAck(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	d, pending := newTestDispatcher(t, transport)
	ctx := context.Background()

	del := newDelivery(uuid.New(), 7, "buyer-1")
	require.NoError(t, del.MarkParked())
	require.NoError(t, pending.Park(ctx, del))

	transport.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(nil)
	n, err := d.Redeliver(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	parked, err := d.Pending(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Len(t, parked, 1)

	require.NoError(t, d.Ack(ctx, del.Key))
	require.NoError(t, d.Ack(ctx, del.Key))
	assert.ErrorIs(t, d.Ack(ctx, "unknown-key"), notification.ErrDeliveryNotFound)

	parked, err = d.Pending(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, parked)
}

func TestDispatcher_EnqueueAfterStopParks(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	d, pending := newTestDispatcher(t, transport)
	d.Stop()

	d.Enqueue(newDelivery(uuid.New(), 2, "vendor-1"))

	parked, err := pending.ListPending(context.Background(), "vendor-1")
	require.NoError(t, err)
	assert.Len(t, parked, 1)
}
