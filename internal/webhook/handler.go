package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handler exposes the ingress endpoint POST /hooks/{event_source_id}.
type Handler struct {
	dispatcher *Dispatcher
}

func NewHandler(dispatcher *Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/hooks/{event_source_id}", h.ingest)
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	sourceID, err := uuid.Parse(chi.URLParam(r, "event_source_id"))
	if err != nil {
		http.Error(w, "invalid event source id", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	signature := signatureFromHeaders(r)
	eventType := r.Header.Get("X-Event-Type")
	if eventType == "" {
		eventType = r.Header.Get("X-GitHub-Event")
	}

	eventID, err := h.dispatcher.Ingest(r.Context(), sourceID, body, signature, eventType)
	if err != nil {
		log.Warn().Err(err).Str("event_source_id", sourceID.String()).Msg("webhook: ingest rejected")
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"event_id": eventID.String()})
}

func signatureFromHeaders(r *http.Request) string {
	for _, h := range []string{"X-Hub-Signature-256", "X-Signature", "X-Slack-Signature", "X-Twilio-Signature", "Stripe-Signature"} {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}
	return ""
}
