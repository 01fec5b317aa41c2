package negotiation

import "errors"

var (
	ErrInvalidOffer      = errors.New("invalid offer")
	ErrOutOfTurn         = errors.New("out of turn")
	ErrDuplicateSession  = errors.New("an open session already exists for this buyer, vendor and product")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExpired    = errors.New("session expired")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSequenceConflict  = errors.New("ledger sequence conflict")
	ErrInvalidActor      = errors.New("invalid actor")
)
