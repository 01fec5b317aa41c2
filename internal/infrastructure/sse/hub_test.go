package sse

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/notification"
)

func TestHub_RegisterUnregister(t *testing.T) {
	h := NewHub()
	c := notification.NewSSEClient("c1", "buyer-1")

	h.Register(c)
	assert.Equal(t, 1, h.GetClientCount())
	assert.Same(t, c, h.GetClient("c1"))
	assert.True(t, h.IsConnected("buyer-1"))

	h.Unregister("c1")
	assert.Equal(t, 0, h.GetClientCount())
	assert.False(t, h.IsConnected("buyer-1"))
}

func TestHub_Deliver(t *testing.T) {
	t.Run("reaches every stream of the recipient", func(t *testing.T) {
		h := NewHub()
		a := notification.NewSSEClient("a", "vendor-1")
		b := notification.NewSSEClient("b", "vendor-1")
		other := notification.NewSSEClient("c", "buyer-1")
		h.Register(a)
		h.Register(b)
		h.Register(other)

		d := notification.NewDelivery(uuid.New(), 3, "vendor-1", "vendor", nil)
		require.NoError(t, h.Deliver(context.Background(), d))

		msg := <-a.MessageChan
		assert.Equal(t, d.Key, msg.ID)
		assert.Len(t, b.MessageChan, 1)
		assert.Len(t, other.MessageChan, 0)
	})

	t.Run("recipient offline", func(t *testing.T) {
		h := NewHub()
		d := notification.NewDelivery(uuid.New(), 1, "vendor-1", "vendor", nil)

		err := h.Deliver(context.Background(), d)
		assert.ErrorIs(t, err, notification.ErrNotConnected)
	})

	t.Run("full channel", func(t *testing.T) {
		h := NewHub()
		c := &notification.SSEClient{ClientID: "c", PartyID: "p", MessageChan: make(chan *notification.SSEMessage)}
		h.Register(c)

		err := h.Deliver(context.Background(), notification.NewDelivery(uuid.New(), 1, "p", "buyer", nil))
		assert.ErrorIs(t, err, notification.ErrChannelFull)
	})
}

func TestHub_SendToClient(t *testing.T) {
	h := NewHub()
	err := h.SendToClient("missing", notification.NewSSEMessage("ping", nil))
	assert.ErrorIs(t, err, notification.ErrClientNotFound)
}

func TestHub_Stop(t *testing.T) {
	h := NewHub()
	c := notification.NewSSEClient("c1", "buyer-1")
	h.Register(c)

	h.Stop()

	assert.Equal(t, 0, h.GetClientCount())
	_, ok := <-c.MessageChan
	assert.False(t, ok)
}
