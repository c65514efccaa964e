package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campaign-server/internal/interfaces"
	"campaign-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	pgxV5 "github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Константы для операций с журналом генерации
const (
	createGenerationJobQuery = `
        INSERT INTO generation_jobs (id, subject_id, kind, status, started_at, completed_at, last_error, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
    `
	getCurrentGenerationJobQuery = `
        SELECT id, subject_id, kind, status, started_at, completed_at, last_error, created_at, updated_at
        FROM generation_jobs
        WHERE subject_id = $1 AND kind = $2
        ORDER BY created_at DESC, id DESC
        LIMIT 1
    `
	// FOR UPDATE: переходы для одного субъекта должны применяться строго
	// последовательно (блокировка на уровне строки, не таблицы).
	lockCurrentGenerationJobQuery = `
        SELECT id, subject_id, kind, status, started_at, completed_at, last_error, created_at, updated_at
        FROM generation_jobs
        WHERE subject_id = $1 AND kind = $2
        ORDER BY created_at DESC, id DESC
        LIMIT 1
        FOR UPDATE
    `
	applyGenerationTransitionQuery = `
        UPDATE generation_jobs
        SET status = $2, started_at = $3, completed_at = $4, last_error = $5, updated_at = NOW()
        WHERE id = $1
    `
	listGenerationJobsQuery = `
        SELECT id, subject_id, kind, status, started_at, completed_at, last_error, created_at, updated_at
        FROM generation_jobs
        WHERE subject_id = $1 AND kind = $2
        ORDER BY created_at DESC, id DESC
        LIMIT $3
    `
)

type pgGenerationJobRepository struct {
	logger *zap.Logger
}

// NewPgGenerationJobRepository создает новый экземпляр репозитория журнала генерации.
func NewPgGenerationJobRepository(logger *zap.Logger) interfaces.GenerationJobRepository {
	return &pgGenerationJobRepository{
		logger: logger.Named("PgGenerationJobRepo"),
	}
}

// Create вставляет новую строку журнала. Повторный запуск после терминального
// статуса всегда проходит через Create, никогда через обновление старой строки.
func (r *pgGenerationJobRepository) Create(ctx context.Context, querier interfaces.DBTX, job *models.GenerationJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.StatusNotStarted
	}
	if !job.Status.IsValid() || !job.Kind.IsValid() {
		return models.ErrInvalidInput
	}

	_, err := querier.Exec(ctx, createGenerationJobQuery,
		job.ID, job.SubjectID, job.Kind, job.Status, job.StartedAt, job.CompletedAt, job.LastError)
	if err != nil {
		r.logger.Error("Failed to create generation job",
			zap.String("subjectID", job.SubjectID.String()),
			zap.String("kind", string(job.Kind)),
			zap.Error(err))
		return fmt.Errorf("failed to create generation job: %w", err)
	}

	r.logger.Info("Generation job created",
		zap.String("jobID", job.ID.String()),
		zap.String("subjectID", job.SubjectID.String()),
		zap.String("kind", string(job.Kind)),
		zap.String("status", string(job.Status)))
	return nil
}

// GetCurrent возвращает последнюю строку журнала субъекта.
func (r *pgGenerationJobRepository) GetCurrent(ctx context.Context, querier interfaces.DBTX, subjectID uuid.UUID, kind models.GenerationKind) (*models.GenerationJob, error) {
	var job models.GenerationJob
	err := pgxscan.Get(ctx, querier, &job, getCurrentGenerationJobQuery, subjectID, kind)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get current generation job",
			zap.String("subjectID", subjectID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get current generation job: %w", err)
	}
	return &job, nil
}

// ApplyTransition применяет переход статуса к последней строке журнала под
// блокировкой строки. Идемпотентно: тот же статус повторно — no-op. Переход,
// запрещённый таблицей состояний, возвращает models.ErrStateConflict и не
// меняет хранимое состояние (защита от устаревших ответов поллера).
func (r *pgGenerationJobRepository) ApplyTransition(ctx context.Context, querier interfaces.DBTX, subjectID uuid.UUID, kind models.GenerationKind, next models.GenerationStatus, lastError *string) (*models.GenerationJob, error) {
	if !next.IsValid() {
		return nil, models.ErrInvalidInput
	}

	log := r.logger.With(
		zap.String("subjectID", subjectID.String()),
		zap.String("kind", string(kind)),
		zap.String("nextStatus", string(next)),
	)

	var job models.GenerationJob
	err := pgxscan.Get(ctx, querier, &job, lockCurrentGenerationJobQuery, subjectID, kind)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		log.Error("Failed to lock current generation job", zap.Error(err))
		return nil, fmt.Errorf("failed to lock current generation job: %w", err)
	}

	// Тот же статус — идемпотентный no-op, состояние не трогаем.
	if job.Status == next {
		return &job, nil
	}

	// Достижимость, а не смежность: опрос мог пропустить промежуточные
	// состояния, которые удалённый сервис прошёл между двумя поллами.
	if !job.Status.CanAdvanceTo(next) {
		log.Warn("Rejected illegal generation status transition",
			zap.String("currentStatus", string(job.Status)))
		return &job, models.ErrStateConflict
	}

	now := time.Now().UTC()
	// startedAt выставляется ровно один раз — при первом уходе из NotStarted.
	if job.StartedAt == nil && next != models.StatusNotStarted {
		job.StartedAt = &now
	}
	// completedAt выставляется ровно один раз — при входе в терминальный статус
	// (Completed закрывает текстовый поток; ImagesCompleted/Failed — весь job).
	if (next == models.StatusCompleted || next.IsTerminal()) && job.CompletedAt == nil {
		job.CompletedAt = &now
	}
	if lastError != nil {
		job.LastError = lastError
	}
	job.Status = next
	job.UpdatedAt = now

	_, err = querier.Exec(ctx, applyGenerationTransitionQuery,
		job.ID, job.Status, job.StartedAt, job.CompletedAt, job.LastError)
	if err != nil {
		log.Error("Failed to apply generation status transition", zap.Error(err))
		return nil, fmt.Errorf("failed to apply generation status transition: %w", err)
	}

	log.Info("Generation status transition applied",
		zap.String("jobID", job.ID.String()))
	return &job, nil
}

// ListBySubject возвращает историю задач субъекта, новые первыми.
func (r *pgGenerationJobRepository) ListBySubject(ctx context.Context, querier interfaces.DBTX, subjectID uuid.UUID, kind models.GenerationKind, limit int) ([]*models.GenerationJob, error) {
	if limit <= 0 {
		limit = 20
	}
	var jobs []*models.GenerationJob
	err := pgxscan.Select(ctx, querier, &jobs, listGenerationJobsQuery, subjectID, kind, limit)
	if err != nil {
		r.logger.Error("Failed to list generation jobs",
			zap.String("subjectID", subjectID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list generation jobs: %w", err)
	}
	return jobs, nil
}
