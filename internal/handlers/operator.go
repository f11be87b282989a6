package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"sms-broadcaster/pkg/tasks"
)

type homePage struct {
	Count int
}

type sentPage struct {
	Count            int
	Queued           bool
	Groups           int
	FailedGroups     int
	FailedRecipients int
}

// Home shows the number of current subscribers and the send form.
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.CountSubscribed(r.Context())
	if err != nil {
		h.log.Error("failed to count subscribers", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.render(w, "home.html", homePage{Count: count})
}

// Send broadcasts the submitted message to every subscriber, or queues it
// for the worker when an enqueuer is configured.
func (h *Handlers) Send(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	message := r.FormValue("message")
	if strings.TrimSpace(message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	if h.enqueuer != nil {
		h.queue(w, r, message)
		return
	}

	// A started broadcast runs to the end even if the operator disconnects.
	ctx := context.WithoutCancel(r.Context())

	numbers, err := h.store.ListSubscribedNumbers(ctx)
	if err != nil {
		h.log.Error("failed to list subscribers", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	res := h.batcher.Broadcast(ctx, message, numbers)
	h.render(w, "sent.html", sentPage{
		Count:            res.Recipients,
		Groups:           res.Groups,
		FailedGroups:     res.FailedGroups,
		FailedRecipients: res.FailedRecipients,
	})
}

func (h *Handlers) queue(w http.ResponseWriter, r *http.Request, message string) {
	count, err := h.store.CountSubscribed(r.Context())
	if err != nil {
		h.log.Error("failed to count subscribers", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	task, err := tasks.NewBroadcastTask(message)
	if err != nil {
		h.log.Error("failed to create broadcast task", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	info, err := h.enqueuer.Enqueue(task)
	if err != nil {
		h.log.Error("failed to enqueue broadcast task", zap.Error(err))
		http.Error(w, "Failed to queue broadcast", http.StatusServiceUnavailable)
		return
	}

	h.log.Info("broadcast queued", zap.String("task_id", info.ID), zap.Int("subscribers", count))
	h.render(w, "sent.html", sentPage{Count: count, Queued: true})
}
