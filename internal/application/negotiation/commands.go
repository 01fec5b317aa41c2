package negotiation

import (
	"github.com/shopspring/decimal"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/negotiation"
)

// CommandKind names an inbound party action.
type CommandKind string

const (
	CommandOffer   CommandKind = "offer"
	CommandMessage CommandKind = "message"
	CommandAccept  CommandKind = "accept"
	CommandReject  CommandKind = "reject"
	CommandCancel  CommandKind = "cancel"
)

// Command is one party action routed to a session's worker.
type Command struct {
	Kind  CommandKind
	Actor negotiation.Actor
	Value *decimal.Decimal
	// Text is the chat message, or an optional note on an offer.
	Text   string
	RefSeq int64
}

func OfferCommand(actor negotiation.Actor, value decimal.Decimal, note string) Command {
	return Command{Kind: CommandOffer, Actor: actor, Value: &value, Text: note}
}

func MessageCommand(actor negotiation.Actor, text string) Command {
	return Command{Kind: CommandMessage, Actor: actor, Text: text}
}

func AcceptCommand(actor negotiation.Actor, refSeq int64) Command {
	return Command{Kind: CommandAccept, Actor: actor, RefSeq: refSeq}
}

func RejectCommand(actor negotiation.Actor, refSeq int64) Command {
	return Command{Kind: CommandReject, Actor: actor, RefSeq: refSeq}
}

func CancelCommand(actor negotiation.Actor) Command {
	return Command{Kind: CommandCancel, Actor: actor}
}

// Outcome is what a successfully dispatched command produced.
type Outcome struct {
	Session    *negotiation.Session    `json:"session"`
	Event      *negotiation.OfferEvent `json:"event"`
	Transition negotiation.Transition  `json:"transition"`
}
