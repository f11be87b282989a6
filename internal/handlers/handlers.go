package handlers

import (
	"bytes"
	"context"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"sms-broadcaster/internal/broadcast"
	"sms-broadcaster/internal/subscription"
	"sms-broadcaster/pkg/tasks"
)

// SubscriberStore is the read side the operator pages need.
type SubscriberStore interface {
	CountSubscribed(ctx context.Context) (int, error)
	ListSubscribedNumbers(ctx context.Context) ([]string, error)
}

type Handlers struct {
	templates *template.Template
	manager   *subscription.Manager
	batcher   *broadcast.Batcher
	store     SubscriberStore
	// enqueuer is nil when broadcasts run inside the request.
	enqueuer tasks.TaskEnqueuer
	log      *zap.Logger
}

func New(templates *template.Template, manager *subscription.Manager, batcher *broadcast.Batcher, store SubscriberStore, enqueuer tasks.TaskEnqueuer, log *zap.Logger) *Handlers {
	return &Handlers{
		templates: templates,
		manager:   manager,
		batcher:   batcher,
		store:     store,
		enqueuer:  enqueuer,
		log:       log,
	}
}

// Router wires the routes. webhookMW wraps the provider callback and
// operatorMW wraps the operator pages.
func (h *Handlers) Router(webhookMW, operatorMW mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/webhook", webhookMW(http.HandlerFunc(h.Webhook))).Methods(http.MethodPost)

	operator := r.NewRoute().Subrouter()
	operator.Use(operatorMW)
	operator.HandleFunc("/", h.Home).Methods(http.MethodGet)
	operator.HandleFunc("/send", h.Send).Methods(http.MethodPost)

	return r
}

func (h *Handlers) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, name, data); err != nil {
		h.log.Error("failed to execute template", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}
