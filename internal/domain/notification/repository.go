package notification

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . PendingStore,Transport

import (
	"context"
)

// PendingStore keeps deliveries that exhausted their push retries until the
// recipient pulls and acknowledges them.
type PendingStore interface {
	Park(ctx context.Context, d *Delivery) error
	ListPending(ctx context.Context, recipient string) ([]*Delivery, error)
	Ack(ctx context.Context, key string) error
}

// Transport pushes a delivery to a connected recipient.
type Transport interface {
	Deliver(ctx context.Context, d *Delivery) error
}

// SSEHub defines the interface for managing SSE connections
type SSEHub interface {
	Transport

	// Client management
	Register(client *SSEClient)
	Unregister(clientID string)
	GetClient(clientID string) *SSEClient
	GetClientCount() int
	IsConnected(partyID string) bool

	// Broadcasting
	SendToParty(partyID string, message *SSEMessage) int
	SendToClient(clientID string, message *SSEMessage) error

	// Lifecycle
	Stop()
}
