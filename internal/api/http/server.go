package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mandi-exchange/negotiation-hub/internal/application/dispatch"
	appNegotiation "github.com/mandi-exchange/negotiation-hub/internal/application/negotiation"
	"github.com/mandi-exchange/negotiation-hub/internal/domain/collaborator"
	"github.com/mandi-exchange/negotiation-hub/internal/domain/negotiation"
	"github.com/mandi-exchange/negotiation-hub/internal/domain/notification"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/metrics"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/sse"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	registry   *appNegotiation.Registry
	dispatcher *dispatch.Dispatcher
	sseHub     *sse.Hub
	metrics    *metrics.Metrics
	validate   *validator.Validate
	logger     zerolog.Logger
}

func NewServer(
	registry *appNegotiation.Registry,
	dispatcher *dispatch.Dispatcher,
	sseHub *sse.Hub,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Server {
	return &Server{
		registry:   registry,
		dispatcher: dispatcher,
		sseHub:     sseHub,
		metrics:    m,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger.With().Str("service", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		// The stream is long-lived and must not inherit the request timeout.
		r.Get("/stream", s.streamEndpoint)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Route("/negotiations", func(r chi.Router) {
				r.Post("/", s.startNegotiation)
				r.Get("/", s.listNegotiations)
				r.Get("/{sessionId}", s.getNegotiation)
				r.Get("/{sessionId}/history", s.getHistory)
				r.Get("/{sessionId}/verify", s.verifyLedger)
				r.Post("/{sessionId}/offers", s.submitOffer)
				r.Post("/{sessionId}/messages", s.submitMessage)
				r.Post("/{sessionId}/accept", s.acceptOffer)
				r.Post("/{sessionId}/reject", s.rejectOffer)
				r.Post("/{sessionId}/cancel", s.cancelNegotiation)
			})

			r.Route("/deliveries", func(r chi.Router) {
				r.Get("/pending", s.listPending)
				r.Post("/{deliveryKey}/ack", s.ackDelivery)
			})
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"sseClients": s.sseHub.GetClientCount(),
	})
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeAndValidate decodes the body and runs the struct's validate tags.
func (s *Server) decodeAndValidate(r *http.Request, v interface{}) error {
	if err := decodeBody(r, v); err != nil {
		return err
	}
	return s.validate.StructCtx(r.Context(), v)
}

// respondDomainError maps engine errors onto HTTP statuses.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error().Err(err).Msg("Request failed")
	}
	respondError(w, status, code, err.Error())
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, negotiation.ErrInvalidOffer):
		return http.StatusBadRequest, "INVALID_OFFER"
	case errors.Is(err, negotiation.ErrInvalidActor):
		return http.StatusBadRequest, "INVALID_ACTOR"
	case errors.Is(err, collaborator.ErrUnsupportedLanguage):
		return http.StatusBadRequest, "UNSUPPORTED_LANGUAGE"
	case errors.Is(err, negotiation.ErrOutOfTurn):
		return http.StatusConflict, "OUT_OF_TURN"
	case errors.Is(err, negotiation.ErrDuplicateSession):
		return http.StatusConflict, "DUPLICATE_SESSION"
	case errors.Is(err, negotiation.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, negotiation.ErrSequenceConflict):
		return http.StatusConflict, "SEQUENCE_CONFLICT"
	case errors.Is(err, negotiation.ErrSessionNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, notification.ErrDeliveryNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, negotiation.ErrSessionExpired):
		return http.StatusGone, "SESSION_EXPIRED"
	case errors.Is(err, appNegotiation.ErrRegistryClosed):
		return http.StatusServiceUnavailable, "SHUTTING_DOWN"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
