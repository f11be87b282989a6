package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TypeBroadcast = "broadcast:send"
)

type BroadcastTaskPayload struct {
	Message string
}

// NewBroadcastTask builds a broadcast task. Failed broadcasts are not
// retried, so the task carries MaxRetry(0).
func NewBroadcastTask(message string) (*asynq.Task, error) {
	payload, err := json.Marshal(BroadcastTaskPayload{Message: message})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBroadcast, payload, asynq.MaxRetry(0)), nil
}
