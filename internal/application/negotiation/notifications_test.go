package negotiation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/negotiation"
	"github.com/mandi-exchange/negotiation-hub/internal/domain/notification"
)

func eventTypes(d *notification.Delivery) []notification.EventType {
	out := make([]notification.EventType, len(d.Events))
	for i, ev := range d.Events {
		out[i] = ev.Type
	}
	return out
}

func TestBuildDeliveries(t *testing.T) {
	s := &negotiation.Session{ID: uuid.New(), BuyerID: "b-1", VendorID: "v-1"}
	v := decimal.NewFromInt(120)

	t.Run("message goes to the counterpart only", func(t *testing.T) {
		e := &negotiation.OfferEvent{Seq: 2, Kind: negotiation.KindMessage, Actor: negotiation.ActorVendor, Text: "hello"}
		ds := buildDeliveries(s, e, negotiation.Transition{})
		require.Len(t, ds, 1)
		assert.Equal(t, "b-1", ds[0].Recipient)
		assert.Equal(t, notification.Key(s.ID, 2, "b-1"), ds[0].Key)
		assert.Equal(t, []notification.EventType{notification.EventMessageDelivered}, eventTypes(ds[0]))
	})

	t.Run("offer with status change", func(t *testing.T) {
		e := &negotiation.OfferEvent{Seq: 3, Kind: negotiation.KindOffer, Actor: negotiation.ActorBuyer, Value: &v}
		tr := negotiation.Transition{From: negotiation.StatusActive, To: negotiation.StatusOfferPending,
			Path: []negotiation.Status{negotiation.StatusOfferPending}}
		ds := buildDeliveries(s, e, tr)
		require.Len(t, ds, 2)
		assert.Equal(t, "b-1", ds[0].Recipient)
		assert.Equal(t, []notification.EventType{notification.EventStatusChanged}, eventTypes(ds[0]))
		assert.Equal(t, "v-1", ds[1].Recipient)
		assert.Equal(t, []notification.EventType{notification.EventOfferRecorded, notification.EventStatusChanged}, eventTypes(ds[1]))
	})

	t.Run("suggestion reaches both sides", func(t *testing.T) {
		e := &negotiation.OfferEvent{Seq: 5, Kind: negotiation.KindCounterOffer, Actor: negotiation.ActorVendor, Value: &v}
		tr := negotiation.Transition{From: negotiation.StatusCountered, To: negotiation.StatusCompromiseOffered,
			Path:       []negotiation.Status{negotiation.StatusDeadlocked, negotiation.StatusCompromiseOffered},
			Suggestion: &negotiation.CompromiseSuggestion{Value: v, BasedOnSeq: 5}}
		ds := buildDeliveries(s, e, tr)
		require.Len(t, ds, 2)
		for _, d := range ds {
			assert.Contains(t, eventTypes(d), notification.EventCompromiseSuggested)
		}
	})

	t.Run("open without offer only announces status", func(t *testing.T) {
		e := &negotiation.OfferEvent{Seq: 1, Kind: negotiation.KindOpen, Actor: negotiation.ActorSystem}
		tr := negotiation.Transition{From: negotiation.StatusInitiated, To: negotiation.StatusActive,
			Path: []negotiation.Status{negotiation.StatusActive}}
		ds := buildDeliveries(s, e, tr)
		require.Len(t, ds, 2)
		for _, d := range ds {
			assert.Equal(t, []notification.EventType{notification.EventStatusChanged}, eventTypes(d))
		}
	})
}
