package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Status represents the delivery status of a notification
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
	StatusParked    Status = "PARKED"
)

// EventType names the typed events a session emits towards its parties.
type EventType string

const (
	EventMessageDelivered    EventType = "MessageDelivered"
	EventOfferRecorded       EventType = "OfferRecorded"
	EventStatusChanged       EventType = "StatusChanged"
	EventCompromiseSuggested EventType = "CompromiseSuggested"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyDelivered  = errors.New("delivery already acknowledged")
	ErrClientNotFound    = errors.New("SSE client not found")
	ErrChannelFull       = errors.New("SSE message channel full")
	ErrNotConnected      = errors.New("recipient not connected")
	ErrCannotRetry       = errors.New("cannot retry delivery")
	ErrDeliveryNotFound  = errors.New("delivery not found")
)

// MessageDelivered carries a chat message in the recipient's language.
type MessageDelivered struct {
	From              string  `json:"from"`
	Text              string  `json:"text"`
	OriginalText      string  `json:"originalText"`
	SourceLang        string  `json:"sourceLang"`
	TargetLang        string  `json:"targetLang"`
	Confidence        float64 `json:"confidence"`
	TranslationFailed bool    `json:"translationFailed"`
	StyleTag          string  `json:"styleTag,omitempty"`
	Phrasing          string  `json:"phrasing,omitempty"`
}

// OfferRecorded announces a value-bearing or response event.
type OfferRecorded struct {
	Kind   string `json:"kind"`
	Actor  string `json:"actor"`
	Value  string `json:"value,omitempty"`
	RefSeq int64  `json:"refSeq,omitempty"`
}

// StatusChanged announces a lifecycle move.
type StatusChanged struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// CompromiseSuggested carries the engine's proposal after a stall.
type CompromiseSuggested struct {
	Value      string `json:"value"`
	Rationale  string `json:"rationale"`
	BasedOnSeq int64  `json:"basedOnSeq"`
}

// Event is one typed payload inside a delivery.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEvent marshals payload under the given type.
func NewEvent(t EventType, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s: %w", t, err)
	}
	return Event{Type: t, Data: data}, nil
}

// Key builds the idempotency key of a delivery.
func Key(sessionID uuid.UUID, seq int64, recipient string) string {
	return fmt.Sprintf("%s:%d:%s", sessionID, seq, recipient)
}

// Delivery is everything one ledger entry produced for one recipient.
type Delivery struct {
	Key         string     `json:"key"`
	SessionID   uuid.UUID  `json:"sessionId"`
	Seq         int64      `json:"seq"`
	Recipient   string     `json:"recipient"`
	Role        string     `json:"role"`
	Events      []Event    `json:"events"`
	Status      Status     `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxRetries  int        `json:"maxRetries"`
	LastError   *string    `json:"lastError,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
	ParkedAt    *time.Time `json:"parkedAt,omitempty"`
}

// NewDelivery creates a pending delivery
func NewDelivery(sessionID uuid.UUID, seq int64, recipient, role string, events []Event) *Delivery {
	return &Delivery{
		Key:        Key(sessionID, seq, recipient),
		SessionID:  sessionID,
		Seq:        seq,
		Recipient:  recipient,
		Role:       role,
		Events:     events,
		Status:     StatusPending,
		MaxRetries: 3,
		CreatedAt:  time.Now().UTC(),
	}
}

// CanTransitionTo checks if a transition to the target status is valid
func (d *Delivery) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusPending:   {StatusSent, StatusFailed, StatusParked},
		StatusSent:      {StatusDelivered, StatusFailed},
		StatusDelivered: {},
		StatusFailed:    {StatusPending, StatusParked}, // Retry or park
		StatusParked:    {StatusPending, StatusDelivered},
	}
	return slices.Contains(transitions[d.Status], target)
}

// MarkSent marks the delivery as handed to the transport
func (d *Delivery) MarkSent() error {
	if !d.CanTransitionTo(StatusSent) {
		return ErrInvalidTransition
	}
	d.Status = StatusSent
	d.Attempts++
	now := time.Now().UTC()
	d.SentAt = &now
	return nil
}

// MarkDelivered marks the delivery as accepted by the recipient
func (d *Delivery) MarkDelivered() error {
	if d.Status == StatusDelivered {
		return ErrAlreadyDelivered
	}
	if !d.CanTransitionTo(StatusDelivered) {
		return ErrInvalidTransition
	}
	d.Status = StatusDelivered
	now := time.Now().UTC()
	d.DeliveredAt = &now
	return nil
}

// MarkFailed records a failed attempt
func (d *Delivery) MarkFailed(errMsg string) error {
	if !d.CanTransitionTo(StatusFailed) {
		return ErrInvalidTransition
	}
	d.Status = StatusFailed
	now := time.Now().UTC()
	d.FailedAt = &now
	d.LastError = &errMsg
	return nil
}

// MarkParked moves an undeliverable delivery to the pull queue
func (d *Delivery) MarkParked() error {
	if !d.CanTransitionTo(StatusParked) {
		return ErrInvalidTransition
	}
	d.Status = StatusParked
	now := time.Now().UTC()
	d.ParkedAt = &now
	return nil
}

// CanRetry checks if the delivery can be retried
func (d *Delivery) CanRetry() bool {
	return d.Status == StatusFailed && d.Attempts <= d.MaxRetries
}

// ResetForRetry resets the delivery for retry
func (d *Delivery) ResetForRetry() error {
	if d.Status == StatusParked {
		d.Status = StatusPending
		return nil
	}
	if !d.CanRetry() {
		return ErrCannotRetry
	}
	d.Status = StatusPending
	d.FailedAt = nil
	return nil
}

// IsTerminal returns true once the delivery needs no more work from the pusher
func (d *Delivery) IsTerminal() bool {
	return d.Status == StatusDelivered || d.Status == StatusParked
}

// SSEClient represents an active SSE connection of one party
type SSEClient struct {
	ClientID    string
	PartyID     string
	ConnectedAt time.Time
	LastEventAt *time.Time
	MessageChan chan *SSEMessage
}

// NewSSEClient creates a new SSE client
func NewSSEClient(clientID, partyID string) *SSEClient {
	return &SSEClient{
		ClientID:    clientID,
		PartyID:     partyID,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *SSEMessage, 100),
	}
}

// Close closes the client's message channel
func (c *SSEClient) Close() {
	close(c.MessageChan)
}

// SSEMessage represents a message to be sent via SSE
type SSEMessage struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Retry     *int            `json:"retry,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewSSEMessage creates a new SSE message
func NewSSEMessage(event string, data json.RawMessage) *SSEMessage {
	return &SSEMessage{
		ID:        ulid.Make().String(),
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// DeliveryMessage wraps a delivery for the SSE wire. The message id is the
// delivery key so clients can drop duplicates.
func DeliveryMessage(d *Delivery) (*SSEMessage, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal delivery: %w", err)
	}
	msg := NewSSEMessage("delivery", data)
	msg.ID = d.Key
	return msg, nil
}
