package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/negotiation"
	"github.com/mandi-exchange/negotiation-hub/internal/domain/notification"
)

func openTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLedger_RoundTrip(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(openTestDB(t))
	id := uuid.New()
	v := decimal.RequireFromString("142.5")
	ts := negotiation.NormalizeTime(time.Now())

	first := &negotiation.OfferEvent{SessionID: id, Seq: 1, Kind: negotiation.KindOpen, Timestamp: ts,
		Opening: &negotiation.Opening{BuyerID: "b", VendorID: "v", ProductID: "p"}}
	require.NoError(t, first.Seal("", nil))
	second := &negotiation.OfferEvent{SessionID: id, Seq: 2, Kind: negotiation.KindOffer, Actor: negotiation.ActorBuyer, Value: &v, Timestamp: ts}
	require.NoError(t, second.Seal(first.ChainHash, nil))

	require.NoError(t, l.Append(ctx, first))
	require.NoError(t, l.Append(ctx, second))
	assert.ErrorIs(t, l.Append(ctx, second), negotiation.ErrSequenceConflict)

	history, err := l.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[1].Value.Equal(v))
	assert.True(t, negotiation.VerifyChain(history, nil).Valid)

	s, err := negotiation.Replay(history)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StatusOfferPending, s.Status)
}

func TestLedger_Sessions(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(openTestDB(t))
	a, b := uuid.New(), uuid.New()

	require.NoError(t, l.Append(ctx, &negotiation.OfferEvent{SessionID: a, Seq: 1}))
	require.NoError(t, l.Append(ctx, &negotiation.OfferEvent{SessionID: b, Seq: 1}))
	require.NoError(t, l.Append(ctx, &negotiation.OfferEvent{SessionID: a, Seq: 2}))

	ids, err := l.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)

	empty, err := l.History(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPendingStore(t *testing.T) {
	ctx := context.Background()
	s := NewPendingStore(openTestDB(t))
	d := notification.NewDelivery(uuid.New(), 3, "vendor-1", "vendor", nil)

	require.NoError(t, s.Park(ctx, d))

	pending, err := s.ListPending(ctx, "vendor-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, d.Key, pending[0].Key)

	none, err := s.ListPending(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, s.Ack(ctx, d.Key))
	assert.ErrorIs(t, s.Ack(ctx, d.Key), notification.ErrDeliveryNotFound)
}
