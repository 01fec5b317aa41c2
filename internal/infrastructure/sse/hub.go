package sse

import (
	"context"
	"fmt"
	"sync"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/notification"
)

// Hub manages SSE clients keyed by client id; a party may hold several.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*notification.SSEClient
}

var _ notification.SSEHub = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*notification.SSEClient),
	}
}

func (h *Hub) Register(client *notification.SSEClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ClientID] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.Close()
		delete(h.clients, clientID)
	}
}

func (h *Hub) GetClient(clientID string) *notification.SSEClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[clientID]
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) IsConnected(partyID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.PartyID == partyID {
			return true
		}
	}
	return false
}

// SendToParty fans a message out to every connection of a party and returns
// how many accepted it.
func (h *Hub) SendToParty(partyID string, message *notification.SSEMessage) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for _, c := range h.clients {
		if c.PartyID == partyID && trySend(c, message) {
			sent++
		}
	}
	return sent
}

func (h *Hub) SendToClient(clientID string, message *notification.SSEMessage) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.clients[clientID]
	if c == nil {
		return notification.ErrClientNotFound
	}
	if !trySend(c, message) {
		return notification.ErrChannelFull
	}
	return nil
}

// Deliver pushes d to the recipient's open streams.
func (h *Hub) Deliver(ctx context.Context, d *notification.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !h.IsConnected(d.Recipient) {
		return fmt.Errorf("%w: %s", notification.ErrNotConnected, d.Recipient)
	}
	msg, err := notification.DeliveryMessage(d)
	if err != nil {
		return err
	}
	if h.SendToParty(d.Recipient, msg) == 0 {
		return notification.ErrChannelFull
	}
	return nil
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}

// trySend must be called with h.mu held so Unregister cannot close the
// channel underneath it.
func trySend(c *notification.SSEClient, msg *notification.SSEMessage) bool {
	select {
	case c.MessageChan <- msg:
		return true
	default:
		return false
	}
}
