package negotiation

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Ledger

import (
	"context"

	"github.com/google/uuid"
)

// Ledger is the append-only event store. Append fails with
// ErrSequenceConflict unless e.Seq is exactly one past the stored head.
type Ledger interface {
	Append(ctx context.Context, e *OfferEvent) error
	History(ctx context.Context, sessionID uuid.UUID) ([]*OfferEvent, error)
	Sessions(ctx context.Context) ([]uuid.UUID, error)
}
