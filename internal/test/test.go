package test

import (
	"context"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"sms-broadcaster/internal/db"
)

// MockTaskEnqueuer is a mock implementation of tasks.TaskEnqueuer for testing.
type MockTaskEnqueuer struct {
	EnqueuedTasks []*asynq.Task
	Err           error
}

func (m *MockTaskEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.EnqueuedTasks = append(m.EnqueuedTasks, task)
	return &asynq.TaskInfo{ID: "test-task-id", Queue: "default"}, nil
}

// SentMessage is one recorded provider call.
type SentMessage struct {
	From       string
	Recipients []string
	Body       string
}

// MockSender records every send and fails the calls listed in FailOn
// (zero-based call index).
type MockSender struct {
	mu     sync.Mutex
	Sent   []SentMessage
	FailOn map[int]error
	calls  int
}

func (m *MockSender) Send(ctx context.Context, from string, to []string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.calls
	m.calls++
	if err, ok := m.FailOn[idx]; ok {
		return err
	}
	m.Sent = append(m.Sent, SentMessage{From: from, Recipients: append([]string(nil), to...), Body: body})
	return nil
}

// Calls returns the number of Send invocations, failed ones included.
func (m *MockSender) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func NewMockDB(t *testing.T) (*db.Store, sqlmock.Sqlmock) {
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	sqlxDB := sqlx.NewDb(mockDb, "sqlmock")
	t.Cleanup(func() {
		mockDb.Close()
	})

	return db.New(sqlxDB), mock
}
