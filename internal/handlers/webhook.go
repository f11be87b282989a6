package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

type webhookPayload struct {
	Originator string  `json:"originator"`
	Body       *string `json:"body"`
}

// Webhook receives an inbound SMS. Once the payload is well-formed it always
// answers 200 with an empty body; the provider ignores the response and
// would otherwise retry against a failing backend.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	var p webhookPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&p); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	if p.Originator == "" || p.Body == nil {
		http.Error(w, "originator and body are required", http.StatusBadRequest)
		return
	}

	out, err := h.manager.HandleInbound(r.Context(), p.Originator, *p.Body)
	if err != nil {
		h.log.Error("failed to handle inbound message", zap.String("number", p.Originator), zap.Error(err))
	} else {
		h.log.Debug("inbound message handled",
			zap.String("number", p.Originator),
			zap.Stringer("transition", out.Transition),
			zap.Bool("notified", out.Notified),
		)
	}

	w.WriteHeader(http.StatusOK)
}
