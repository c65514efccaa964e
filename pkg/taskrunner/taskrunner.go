package taskrunner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Runner определяет интерфейс для запуска фоновых fire-and-forget задач.
// Обработчик HTTP-запроса отдаёт задачу раннеру и сразу возвращает управление
// пользователю; раннер ограничивает число одновременно выполняемых задач.
type Runner interface {
	Submit(ctx context.Context, name string, fn TaskFunc) (uuid.UUID, error)
	Get(taskID uuid.UUID) (*Task, error)
	CleanupTasks(age time.Duration)
	Shutdown(ctx context.Context) error
}

// TaskStatus представляет статус фоновой задачи
type TaskStatus string

// Возможные статусы задач
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// TaskFunc представляет функцию, выполняемую в задаче
type TaskFunc func(ctx context.Context) error

// Task представляет одну фоновую задачу
type Task struct {
	ID        uuid.UUID
	Name      string
	Status    TaskStatus
	Err       error
	CreatedAt time.Time
	UpdatedAt time.Time
	cancel    context.CancelFunc
}

// ErrTooManyTasks возвращается, когда достигнут предел активных задач.
var ErrTooManyTasks = errors.New("превышено максимальное количество активных задач")

// Config содержит конфигурацию для TaskRunner
type Config struct {
	MaxTasks int
}

// TaskRunner управляет фоновыми задачами
type TaskRunner struct {
	tasks    map[uuid.UUID]*Task
	mu       sync.RWMutex
	maxTasks int
	closing  chan struct{}
	closed   bool
	wg       sync.WaitGroup
}

// New создает новый экземпляр TaskRunner
func New(cfg Config) *TaskRunner {
	maxTasks := cfg.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 10
	}

	return &TaskRunner{
		tasks:    make(map[uuid.UUID]*Task),
		maxTasks: maxTasks,
		closing:  make(chan struct{}),
	}
}

// Submit создает и запускает новую фоновую задачу. Контекст задачи
// отвязан от контекста запроса: запрос завершается сразу, а задача живёт
// до собственного завершения или Shutdown.
func (r *TaskRunner) Submit(ctx context.Context, name string, fn TaskFunc) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return uuid.UUID{}, errors.New("task runner остановлен")
	}

	// Проверка maxTasks (под блокировкой)
	activeTasks := 0
	for _, task := range r.tasks {
		if task.Status == TaskStatusPending || task.Status == TaskStatusRunning {
			activeTasks++
		}
	}
	if activeTasks >= r.maxTasks {
		return uuid.UUID{}, ErrTooManyTasks
	}

	taskID := uuid.New()

	// Независимый контекст с логгером из ctx запроса
	baseTaskCtx, cancel := context.WithCancel(context.Background())
	taskLogger := log.Ctx(ctx)
	taskCtx := taskLogger.WithContext(baseTaskCtx)

	task := &Task{
		ID:        taskID,
		Name:      name,
		Status:    TaskStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		cancel:    cancel,
	}
	r.tasks[taskID] = task

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.runTask(taskCtx, task, fn)
	}()

	return taskID, nil
}

// runTask выполняет задачу и обновляет ее статус
func (r *TaskRunner) runTask(ctx context.Context, task *Task, fn TaskFunc) {
	r.updateTaskStatus(ctx, task, TaskStatusRunning, nil)

	err := fn(ctx)

	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		log.Ctx(ctx).Info().Str("taskID", task.ID.String()).Str("task", task.Name).Msg("Контекст задачи был отменен")
		r.updateTaskStatus(ctx, task, TaskStatusFailed, ctx.Err())
		return
	}

	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("taskID", task.ID.String()).Str("task", task.Name).Msg("Задача завершилась с ошибкой")
		r.updateTaskStatus(ctx, task, TaskStatusFailed, err)
	} else {
		log.Ctx(ctx).Info().Str("taskID", task.ID.String()).Str("task", task.Name).Msg("Задача успешно выполнена")
		r.updateTaskStatus(ctx, task, TaskStatusCompleted, nil)
	}
}

func (r *TaskRunner) updateTaskStatus(ctx context.Context, task *Task, status TaskStatus, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task.Status = status
	task.Err = err
	task.UpdatedAt = time.Now()

	log.Ctx(ctx).Debug().
		Str("taskID", task.ID.String()).
		Str("task", task.Name).
		Str("newStatus", string(task.Status)).
		Msg("Статус задачи обновлен")
}

// Get возвращает информацию о задаче по ID
func (r *TaskRunner) Get(taskID uuid.UUID) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("задача с ID %s не найдена", taskID)
	}
	return task, nil
}

// CleanupTasks удаляет завершенные задачи, которые старше указанного времени
func (r *TaskRunner) CleanupTasks(age time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for id, task := range r.tasks {
		if (task.Status == TaskStatusCompleted || task.Status == TaskStatusFailed) &&
			now.Sub(task.UpdatedAt) > age {
			delete(r.tasks, id)
		}
	}
}

// Shutdown отменяет незавершенные задачи и ожидает их завершения с таймаутом
func (r *TaskRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.closing)
		for _, task := range r.tasks {
			if task.Status == TaskStatusPending || task.Status == TaskStatusRunning {
				if task.cancel != nil {
					task.cancel()
				}
			}
		}
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("таймаут при ожидании завершения задач")
	}
}
