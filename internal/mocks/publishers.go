package mocks

import (
	"context"
	"time"

	"campaign-server/internal/messaging"
	"campaign-server/pkg/taskrunner"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock StatusEventPublisher
type StatusEventPublisher struct {
	mock.Mock
}

func (m *StatusEventPublisher) PublishStatusChanged(ctx context.Context, event messaging.GenerationStatusEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

var _ messaging.StatusEventPublisher = (*StatusEventPublisher)(nil)

// Mock Runner. Submit executes the task inline so tests see its effects
// synchronously; override with a custom Run func when that is not wanted.
type Runner struct {
	mock.Mock
	Inline bool
}

func (m *Runner) Submit(ctx context.Context, name string, fn taskrunner.TaskFunc) (uuid.UUID, error) {
	args := m.Called(ctx, name, fn)
	if m.Inline && args.Error(1) == nil {
		_ = fn(ctx)
	}
	return args.Get(0).(uuid.UUID), args.Error(1)
}
func (m *Runner) Get(taskID uuid.UUID) (*taskrunner.Task, error) {
	args := m.Called(taskID)
	task, _ := args.Get(0).(*taskrunner.Task)
	return task, args.Error(1)
}
func (m *Runner) CleanupTasks(age time.Duration) {
	m.Called(age)
}
func (m *Runner) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

var _ taskrunner.Runner = (*Runner)(nil)
