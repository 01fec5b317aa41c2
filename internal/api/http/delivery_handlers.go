package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/notification"
)

func (s *Server) listPending(w http.ResponseWriter, r *http.Request) {
	recipient := strings.TrimSpace(r.URL.Query().Get("recipient"))
	if recipient == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "recipient required")
		return
	}
	pending, err := s.dispatcher.Pending(r.Context(), recipient)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": pending,
		"count": len(pending),
	})
}

func (s *Server) ackDelivery(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "deliveryKey")
	if key == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "delivery key required")
		return
	}
	if err := s.dispatcher.Ack(r.Context(), key); err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"key": key, "status": "acked"})
}

// streamEndpoint holds an SSE connection for one party. Parked deliveries
// are pushed again right after the client registers.
func (s *Server) streamEndpoint(w http.ResponseWriter, r *http.Request) {
	party := strings.TrimSpace(r.URL.Query().Get("party"))
	if party == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "party required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = ulid.Make().String()
	}

	client := notification.NewSSEClient(clientID, party)
	s.sseHub.Register(client)
	defer s.sseHub.Unregister(clientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	go s.redeliver(ctx, party)

	for {
		select {
		case msg, open := <-client.MessageChan:
			if !open || msg == nil {
				return
			}
			if err := writeSSE(w, msg); err != nil {
				s.logger.Debug().Err(err).Str("party_id", party).Msg("Stream write failed")
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) redeliver(ctx context.Context, party string) {
	n, err := s.dispatcher.Redeliver(ctx, party)
	if err != nil {
		s.logger.Warn().Err(err).Str("party_id", party).Msg("Redelivery failed")
		return
	}
	if n > 0 {
		s.logger.Info().Str("party_id", party).Int("count", n).Msg("Parked deliveries pushed")
	}
}

func writeSSE(w http.ResponseWriter, msg *notification.SSEMessage) error {
	payload, err := json.Marshal(msg.Data)
	if err != nil {
		return err
	}
	if msg.Retry != nil {
		if _, err := fmt.Fprintf(w, "retry: %d\n", *msg.Retry); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", msg.ID, msg.Event, payload)
	return err
}
