package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/negotiation"
	"github.com/mandi-exchange/negotiation-hub/internal/domain/notification"
)

func TestLedger_AppendAndHistory(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	id := uuid.New()

	require.NoError(t, l.Append(ctx, &negotiation.OfferEvent{SessionID: id, Seq: 1, Kind: negotiation.KindOpen}))
	require.NoError(t, l.Append(ctx, &negotiation.OfferEvent{SessionID: id, Seq: 2, Kind: negotiation.KindMessage}))

	err := l.Append(ctx, &negotiation.OfferEvent{SessionID: id, Seq: 2, Kind: negotiation.KindMessage})
	assert.ErrorIs(t, err, negotiation.ErrSequenceConflict)
	err = l.Append(ctx, &negotiation.OfferEvent{SessionID: id, Seq: 4, Kind: negotiation.KindMessage})
	assert.ErrorIs(t, err, negotiation.ErrSequenceConflict)

	history, err := l.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(1), history[0].Seq)
	assert.Equal(t, int64(2), history[1].Seq)

	history[0].Text = "tampered"
	again, err := l.History(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, again[0].Text)
}

func TestLedger_Sessions(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	a, b := uuid.New(), uuid.New()

	require.NoError(t, l.Append(ctx, &negotiation.OfferEvent{SessionID: a, Seq: 1}))
	require.NoError(t, l.Append(ctx, &negotiation.OfferEvent{SessionID: b, Seq: 1}))
	require.NoError(t, l.Append(ctx, &negotiation.OfferEvent{SessionID: a, Seq: 2}))

	ids, err := l.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)
}

func TestPendingStore(t *testing.T) {
	ctx := context.Background()
	s := NewPendingStore()
	id := uuid.New()

	first := notification.NewDelivery(id, 2, "buyer-1", "buyer", nil)
	second := notification.NewDelivery(id, 3, "buyer-1", "buyer", nil)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	other := notification.NewDelivery(id, 2, "vendor-1", "vendor", nil)

	require.NoError(t, s.Park(ctx, second))
	require.NoError(t, s.Park(ctx, first))
	require.NoError(t, s.Park(ctx, other))
	require.NoError(t, s.Park(ctx, first))

	pending, err := s.ListPending(ctx, "buyer-1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.Key, pending[0].Key)
	assert.Equal(t, second.Key, pending[1].Key)

	require.NoError(t, s.Ack(ctx, first.Key))
	assert.ErrorIs(t, s.Ack(ctx, first.Key), notification.ErrDeliveryNotFound)

	pending, err = s.ListPending(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
