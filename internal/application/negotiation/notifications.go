package negotiation

import (
	"github.com/samber/lo"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/negotiation"
	"github.com/mandi-exchange/negotiation-hub/internal/domain/notification"
)

// Notifier accepts deliveries for asynchronous push. Enqueue must not block
// on the recipient.
type Notifier interface {
	Enqueue(deliveries ...*notification.Delivery)
}

type nopNotifier struct{}

func (nopNotifier) Enqueue(...*notification.Delivery) {}

// buildDeliveries fans one appended event out into at most one delivery per
// party, carrying every typed event that party should see.
func buildDeliveries(s *negotiation.Session, e *negotiation.OfferEvent, tr negotiation.Transition) []*notification.Delivery {
	events := map[negotiation.Actor][]notification.Event{}
	add := func(to negotiation.Actor, t notification.EventType, payload any) {
		ev, err := notification.NewEvent(t, payload)
		if err != nil {
			return
		}
		events[to] = append(events[to], ev)
	}
	both := []negotiation.Actor{negotiation.ActorBuyer, negotiation.ActorVendor}
	counterparts := both
	if e.Actor.IsParty() {
		counterparts = []negotiation.Actor{e.Actor.Counterpart()}
	}

	switch e.Kind {
	case negotiation.KindMessage:
		for _, to := range counterparts {
			add(to, notification.EventMessageDelivered, messagePayload(e))
		}
	case negotiation.KindOpen, negotiation.KindOffer, negotiation.KindCounterOffer, negotiation.KindAccept, negotiation.KindReject:
		if e.Kind != negotiation.KindOpen || e.Value != nil {
			for _, to := range counterparts {
				add(to, notification.EventOfferRecorded, offerPayload(e))
				if e.Text != "" {
					add(to, notification.EventMessageDelivered, messagePayload(e))
				}
			}
		}
	}
	if tr.Changed() {
		for _, to := range both {
			add(to, notification.EventStatusChanged, notification.StatusChanged{From: string(tr.From), To: string(tr.To)})
		}
	}
	if tr.Suggestion != nil {
		for _, to := range both {
			add(to, notification.EventCompromiseSuggested, notification.CompromiseSuggested{
				Value:      tr.Suggestion.Value.String(),
				Rationale:  tr.Suggestion.Rationale,
				BasedOnSeq: tr.Suggestion.BasedOnSeq,
			})
		}
	}

	recipients := lo.Filter(both, func(a negotiation.Actor, _ int) bool {
		return len(events[a]) > 0 && s.PartyID(a) != ""
	})
	return lo.Map(recipients, func(a negotiation.Actor, _ int) *notification.Delivery {
		return notification.NewDelivery(s.ID, e.Seq, s.PartyID(a), string(a), events[a])
	})
}

func messagePayload(e *negotiation.OfferEvent) notification.MessageDelivered {
	return notification.MessageDelivered{
		From:              string(e.Actor),
		Text:              e.Delivered(),
		OriginalText:      e.Text,
		SourceLang:        e.SourceLang,
		TargetLang:        e.TargetLang,
		Confidence:        e.TranslationConfidence,
		TranslationFailed: e.TranslationFailed,
		StyleTag:          e.StyleTag,
		Phrasing:          e.Phrasing,
	}
}

func offerPayload(e *negotiation.OfferEvent) notification.OfferRecorded {
	p := notification.OfferRecorded{Kind: string(e.Kind), Actor: string(e.Actor), RefSeq: e.RefSeq}
	if e.Value != nil {
		p.Value = e.Value.String()
	}
	return p
}
