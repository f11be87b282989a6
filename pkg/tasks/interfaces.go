package tasks

import "github.com/hibiken/asynq"

// TaskEnqueuer is the part of asynq.Client the server uses to queue
// broadcasts. Tests substitute a mock.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}
