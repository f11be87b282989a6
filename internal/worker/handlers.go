package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"sms-broadcaster/internal/broadcast"
	"sms-broadcaster/pkg/tasks"
)

// SubscriberLister returns the numbers a broadcast goes to.
type SubscriberLister interface {
	ListSubscribedNumbers(ctx context.Context) ([]string, error)
}

type TaskHandler struct {
	store   SubscriberLister
	batcher *broadcast.Batcher
	log     *zap.Logger
}

func NewTaskHandler(store SubscriberLister, batcher *broadcast.Batcher, log *zap.Logger) *TaskHandler {
	return &TaskHandler{store: store, batcher: batcher, log: log}
}

// HandleBroadcastTask sends a queued broadcast to the subscribers current at
// processing time.
func (h *TaskHandler) HandleBroadcastTask(ctx context.Context, t *asynq.Task) error {
	var p tasks.BroadcastTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	numbers, err := h.store.ListSubscribedNumbers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscribed numbers: %w", err)
	}

	res := h.batcher.Broadcast(ctx, p.Message, numbers)
	if res.FailedGroups > 0 {
		return fmt.Errorf("%d of %d groups failed (%d recipients): %w",
			res.FailedGroups, res.Groups, res.FailedRecipients, asynq.SkipRetry)
	}

	h.log.Info("queued broadcast sent", zap.Int("recipients", res.Recipients))
	return nil
}

// Register wires the handlers into an asynq mux.
func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(tasks.TypeBroadcast, h.HandleBroadcastTask)
}
