package negotiation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// Suggest proposes the midpoint of both sides' latest offers, clamped into the
// band when one is known. It returns nil until both sides have quoted.
func Suggest(s *Session, basedOn int64, at time.Time) *CompromiseSuggestion {
	if s.BuyerOffer == nil || s.VendorOffer == nil {
		return nil
	}
	mid := s.BuyerOffer.Add(*s.VendorOffer).Div(two)
	if s.Terms.Band != nil {
		mid = s.Terms.Band.Clamp(mid)
	}
	return &CompromiseSuggestion{
		Value:       mid,
		Rationale:   rationale(s.Terms),
		GeneratedAt: at,
		BasedOnSeq:  basedOn,
	}
}

func rationale(t Terms) string {
	parts := []string{"midpoint"}
	if t.Context.RegionalTag != "" {
		parts = append(parts, "region:"+t.Context.RegionalTag)
	}
	if t.Context.RelationshipTag != "" {
		parts = append(parts, "relationship:"+t.Context.RelationshipTag)
	}
	if t.Band != nil {
		parts = append(parts, fmt.Sprintf("band:%s-%s", t.Band.Low, t.Band.High))
	}
	return strings.Join(parts, "|")
}
