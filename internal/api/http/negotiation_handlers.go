package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	appNegotiation "github.com/mandi-exchange/negotiation-hub/internal/application/negotiation"
	"github.com/mandi-exchange/negotiation-hub/internal/domain/negotiation"
)

type startNegotiationRequest struct {
	BuyerID        string      `json:"buyerId" validate:"required"`
	VendorID       string      `json:"vendorId" validate:"required,nefield=BuyerID"`
	ProductID      string      `json:"productId" validate:"required"`
	Location       string      `json:"location"`
	QualityGrade   string      `json:"qualityGrade"`
	BuyerLocation  string      `json:"buyerLocation"`
	BuyerLanguage  string      `json:"buyerLanguage" validate:"omitempty,len=2"`
	VendorLanguage string      `json:"vendorLanguage" validate:"omitempty,len=2"`
	InitialOffer   json.Number `json:"initialOffer"`
	OpenedBy       string      `json:"openedBy" validate:"omitempty,oneof=buyer vendor"`
}

// partyRequest identifies the caller either by side or by party id.
type partyRequest struct {
	Actor   string `json:"actor" validate:"required_without=PartyID,omitempty,oneof=buyer vendor"`
	PartyID string `json:"partyId"`
}

type offerRequest struct {
	partyRequest
	Value json.Number `json:"value" validate:"required"`
	Note  string      `json:"note" validate:"max=2000"`
}

type messageRequest struct {
	partyRequest
	Text string `json:"text" validate:"required,max=2000"`
}

type respondRequest struct {
	partyRequest
	RefSeq int64 `json:"refSeq" validate:"gte=0"`
}

type outcomeResponse struct {
	Session    *negotiation.Session    `json:"session"`
	Event      *negotiation.OfferEvent `json:"event"`
	Transition negotiation.Transition  `json:"transition"`
}

func newOutcomeResponse(o *appNegotiation.Outcome) outcomeResponse {
	return outcomeResponse{Session: o.Session, Event: o.Event, Transition: o.Transition}
}

func (s *Server) startNegotiation(w http.ResponseWriter, r *http.Request) {
	var req startNegotiationRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	in := appNegotiation.StartInput{
		BuyerID:        req.BuyerID,
		VendorID:       req.VendorID,
		ProductID:      req.ProductID,
		Location:       req.Location,
		QualityGrade:   req.QualityGrade,
		BuyerLocation:  req.BuyerLocation,
		BuyerLanguage:  strings.ToLower(req.BuyerLanguage),
		VendorLanguage: strings.ToLower(req.VendorLanguage),
		OpenedBy:       negotiation.Actor(req.OpenedBy),
	}
	if req.InitialOffer != "" {
		v, err := negotiation.ParseAmount(req.InitialOffer.String())
		if err != nil {
			s.respondDomainError(w, err)
			return
		}
		in.InitialOffer = &v
	}

	session, err := s.registry.Start(r.Context(), in)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) listNegotiations(w http.ResponseWriter, r *http.Request) {
	party := strings.TrimSpace(r.URL.Query().Get("party"))
	if party == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "party required")
		return
	}
	sessions := s.registry.List(r.Context(), party)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": sessions,
		"count": len(sessions),
	})
}

func (s *Server) getNegotiation(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid session id")
		return
	}
	session, err := s.registry.Get(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid session id")
		return
	}
	events, err := s.registry.History(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": events,
		"count": len(events),
	})
}

func (s *Server) verifyLedger(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid session id")
		return
	}
	report, err := s.registry.Verify(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) submitOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	id, actor, ok := s.commandPreamble(w, r, &req, &req.partyRequest)
	if !ok {
		return
	}
	value, err := negotiation.ParseAmount(req.Value.String())
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondOutcome(w, r, id, appNegotiation.OfferCommand(actor, value, req.Note))
}

func (s *Server) submitMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	id, actor, ok := s.commandPreamble(w, r, &req, &req.partyRequest)
	if !ok {
		return
	}
	s.respondOutcome(w, r, id, appNegotiation.MessageCommand(actor, req.Text))
}

func (s *Server) acceptOffer(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	id, actor, ok := s.commandPreamble(w, r, &req, &req.partyRequest)
	if !ok {
		return
	}
	s.respondOutcome(w, r, id, appNegotiation.AcceptCommand(actor, req.RefSeq))
}

func (s *Server) rejectOffer(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	id, actor, ok := s.commandPreamble(w, r, &req, &req.partyRequest)
	if !ok {
		return
	}
	s.respondOutcome(w, r, id, appNegotiation.RejectCommand(actor, req.RefSeq))
}

func (s *Server) cancelNegotiation(w http.ResponseWriter, r *http.Request) {
	var req partyRequest
	id, actor, ok := s.commandPreamble(w, r, &req, &req)
	if !ok {
		return
	}
	s.respondOutcome(w, r, id, appNegotiation.CancelCommand(actor))
}

// commandPreamble parses the session id and body, then resolves the caller's
// side. It writes the error response itself and reports false on failure.
func (s *Server) commandPreamble(w http.ResponseWriter, r *http.Request, body interface{}, party *partyRequest) (uuid.UUID, negotiation.Actor, bool) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid session id")
		return uuid.Nil, "", false
	}
	if err := s.decodeAndValidate(r, body); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return uuid.Nil, "", false
	}
	actor, err := s.resolveActor(r, id, party)
	if err != nil {
		s.respondDomainError(w, err)
		return uuid.Nil, "", false
	}
	return id, actor, true
}

func (s *Server) resolveActor(r *http.Request, id uuid.UUID, party *partyRequest) (negotiation.Actor, error) {
	if party.PartyID == "" {
		return negotiation.ParseActor(party.Actor)
	}
	session, err := s.registry.Get(r.Context(), id)
	if err != nil {
		return "", err
	}
	actor, ok := session.ActorFor(party.PartyID)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a party to this session", negotiation.ErrInvalidActor, party.PartyID)
	}
	if party.Actor != "" && negotiation.Actor(party.Actor) != actor {
		return "", fmt.Errorf("%w: %s is the %s", negotiation.ErrInvalidActor, party.PartyID, actor)
	}
	return actor, nil
}

func (s *Server) respondOutcome(w http.ResponseWriter, r *http.Request, id uuid.UUID, cmd appNegotiation.Command) {
	out, err := s.registry.Dispatch(r.Context(), id, cmd)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newOutcomeResponse(out))
}
