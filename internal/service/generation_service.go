package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campaign-server/internal/client"
	"campaign-server/internal/interfaces"
	"campaign-server/internal/messaging"
	"campaign-server/internal/models"
	"campaign-server/pkg/taskrunner"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// GenerationService определяет бизнес-логику оркестрации генерации контента:
// запуск на удалённом gamemaster-сервисе, применение переходов статусной
// машины и сверку прогресса поллером.
type GenerationService interface {
	// StartGeneration создает новую задачу генерации и асинхронно запускает её
	// на удалённом сервисе. Возвращает созданную строку журнала (NotStarted);
	// результат триггера наблюдается через статус задачи.
	StartGeneration(ctx context.Context, kind models.GenerationKind, subjectID uuid.UUID) (*models.GenerationJob, error)

	// StartImageGeneration запускает генерацию изображений для кампании,
	// текстовый контент которой уже готов (Completed -> ImagesInProgress).
	StartImageGeneration(ctx context.Context, campaignID uuid.UUID) (*models.GenerationJob, error)

	// PollStatus опрашивает удалённый сервис с ограниченным числом попыток и
	// идемпотентно сверяет ответ с локальным журналом. При исчерпании попыток
	// возвращает последнее локальное состояние и ошибку models.ErrTransient:
	// транзиентный сбой сети никогда не превращается в Failed.
	PollStatus(ctx context.Context, kind models.GenerationKind, subjectID uuid.UUID) (*models.GenerationJob, error)

	// GetStatus возвращает текущее локальное состояние без обращения к
	// удалённому сервису.
	GetStatus(ctx context.Context, kind models.GenerationKind, subjectID uuid.UUID) (*models.GenerationJob, error)
}

// PollConfig задаёт параметры поллера.
type PollConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

type generationServiceImpl struct {
	db        interfaces.DBTX
	txManager interfaces.TxManager
	jobRepo   interfaces.GenerationJobRepository
	gm        client.GamemasterClient
	publisher messaging.StatusEventPublisher
	runner    taskrunner.Runner
	pollCfg   PollConfig
	logger    *zap.Logger
}

// NewGenerationService создает новый GenerationService.
func NewGenerationService(
	db interfaces.DBTX,
	txManager interfaces.TxManager,
	jobRepo interfaces.GenerationJobRepository,
	gm client.GamemasterClient,
	publisher messaging.StatusEventPublisher,
	runner taskrunner.Runner,
	pollCfg PollConfig,
	logger *zap.Logger,
) GenerationService {
	if pollCfg.MaxAttempts <= 0 {
		pollCfg.MaxAttempts = 3
	}
	if pollCfg.RetryDelay <= 0 {
		pollCfg.RetryDelay = 12 * time.Second
	}
	return &generationServiceImpl{
		db:        db,
		txManager: txManager,
		jobRepo:   jobRepo,
		gm:        gm,
		publisher: publisher,
		runner:    runner,
		pollCfg:   pollCfg,
		logger:    logger.Named("GenerationService"),
	}
}

// StartGeneration создает новую строку журнала и ставит триггер в фоновую
// задачу: обработчик запроса не блокируется на времени работы генерации.
func (s *generationServiceImpl) StartGeneration(ctx context.Context, kind models.GenerationKind, subjectID uuid.UUID) (*models.GenerationJob, error) {
	if !kind.IsValid() || subjectID == uuid.Nil {
		return nil, models.ErrInvalidInput
	}

	log := s.logger.With(
		zap.String("subjectID", subjectID.String()),
		zap.String("kind", string(kind)),
	)

	job := &models.GenerationJob{
		ID:        uuid.New(),
		SubjectID: subjectID,
		Kind:      kind,
		Status:    models.StatusNotStarted,
	}

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		current, err := s.jobRepo.GetCurrent(ctx, tx, subjectID, kind)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		// Новая задача допустима только когда субъект ещё не генерировался или
		// предыдущая задача закончилась терминально. Завершённую строку журнала
		// никогда не переиспользуем — всегда новая.
		if current != nil && !current.Status.IsTerminal() {
			return models.ErrGenerationInProgress
		}
		return s.jobRepo.Create(ctx, tx, job)
	})
	if err != nil {
		if isActiveJobConflict(err) {
			// Конкурентный запуск успел вставить свою строку между нашим
			// чтением и вставкой: частичный уникальный индекс пропускает
			// только одну нетерминальную задачу на субъект.
			log.Debug("Lost concurrent start race, active job already exists")
			return nil, models.ErrGenerationInProgress
		}
		return nil, err
	}

	if _, err := s.runner.Submit(ctx, "trigger_generation", func(taskCtx context.Context) error {
		return s.triggerAndRecord(taskCtx, kind, subjectID)
	}); err != nil {
		// Задачу создали, но триггер не запустился: фиксируем Failed, чтобы
		// ошибка не потерялась молча.
		log.Error("Failed to submit trigger task", zap.Error(err))
		msg := err.Error()
		s.applyTransition(context.WithoutCancel(ctx), kind, subjectID, models.StatusFailed, &msg)
		return nil, fmt.Errorf("failed to submit trigger task: %w", err)
	}

	log.Info("Generation job created, trigger dispatched", zap.String("jobID", job.ID.String()))
	return job, nil
}

// isActiveJobConflict распознаёт нарушение uniq_generation_jobs_active:
// проигрыш гонки двух конкурентных запусков для одного субъекта.
func isActiveJobConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// triggerAndRecord выполняет сам триггер на удалённом сервисе и записывает
// результат в журнал. Ошибка возвращается раннеру и остаётся в статусе задачи.
func (s *generationServiceImpl) triggerAndRecord(ctx context.Context, kind models.GenerationKind, subjectID uuid.UUID) error {
	accepted, err := s.gm.TriggerGeneration(ctx, kind, subjectID)
	if err != nil || !accepted {
		if err == nil {
			err = models.ErrRemoteRejected
		}
		msg := err.Error()
		s.applyTransition(ctx, kind, subjectID, models.StatusFailed, &msg)
		return fmt.Errorf("trigger generation: %w", err)
	}

	_, applyErr := s.applyTransition(ctx, kind, subjectID, models.StatusInProgress, nil)
	return applyErr
}

// StartImageGeneration переводит задачу Completed -> ImagesInProgress после
// подтверждения триггера изображений удалённым сервисом.
func (s *generationServiceImpl) StartImageGeneration(ctx context.Context, campaignID uuid.UUID) (*models.GenerationJob, error) {
	if campaignID == uuid.Nil {
		return nil, models.ErrInvalidInput
	}

	current, err := s.jobRepo.GetCurrent(ctx, s.db, campaignID, models.KindCampaignContent)
	if err != nil {
		return nil, err
	}
	if current.Status != models.StatusCompleted {
		return nil, fmt.Errorf("campaign content is not completed: %w", models.ErrStateConflict)
	}

	accepted, err := s.gm.TriggerImageGeneration(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !accepted {
		return nil, fmt.Errorf("image generation not accepted: %w", models.ErrRemoteRejected)
	}

	return s.applyTransition(ctx, models.KindCampaignContent, campaignID, models.StatusImagesInProgress, nil)
}

// PollStatus — ограниченный ретраями опрос удалённого сервиса.
func (s *generationServiceImpl) PollStatus(ctx context.Context, kind models.GenerationKind, subjectID uuid.UUID) (*models.GenerationJob, error) {
	if !kind.IsValid() || subjectID == uuid.Nil {
		return nil, models.ErrInvalidInput
	}

	log := s.logger.With(
		zap.String("subjectID", subjectID.String()),
		zap.String("kind", string(kind)),
	)

	stored, err := s.jobRepo.GetCurrent(ctx, s.db, subjectID, kind)
	if err != nil {
		return nil, err
	}

	// Терминальная задача больше не меняется: опрос идемпотентен и не ходит
	// к удалённому сервису.
	if stored.Status.IsTerminal() {
		return stored, nil
	}

	var lastErr error
	for attempt := 1; attempt <= s.pollCfg.MaxAttempts; attempt++ {
		remote, err := s.gm.GetStatus(ctx, kind, subjectID)
		if err == nil {
			return s.reconcile(ctx, kind, subjectID, stored, remote)
		}

		switch {
		case errors.Is(err, models.ErrNotFound):
			// Удалённый сервис явно сообщил об отсутствии задачи — это сигнал
			// сбоя, а не транзиентная ошибка; не ретраим.
			log.Warn("Remote reports no such generation job")
			return stored, err
		case errors.Is(err, models.ErrTransient):
			lastErr = err
			log.Warn("Transient error polling gamemaster",
				zap.Int("attempt", attempt),
				zap.Error(err))
			if attempt < s.pollCfg.MaxAttempts {
				select {
				case <-time.After(s.pollCfg.RetryDelay):
				case <-ctx.Done():
					return stored, fmt.Errorf("poll cancelled: %w", ctx.Err())
				}
			}
		default:
			// Явный отказ удалённого сервиса — ретраем не лечится.
			return stored, err
		}
	}

	// Попытки исчерпаны: возвращаем последнее локальное состояние без
	// изменений. Транзиентный сбой сети не выдумывает Failed.
	pollRetriesExhausted.Inc()
	log.Warn("Poll retries exhausted, returning last known state",
		zap.String("status", string(stored.Status)))
	return stored, fmt.Errorf("poll retries exhausted: %w", lastErr)
}

// reconcile применяет статус из ответа удалённого сервиса к локальному журналу.
func (s *generationServiceImpl) reconcile(ctx context.Context, kind models.GenerationKind, subjectID uuid.UUID, stored *models.GenerationJob, remote *client.RemoteStatus) (*models.GenerationJob, error) {
	next, err := remote.MapStatus()
	if err != nil {
		s.logger.Warn("Remote returned unknown status, keeping local state",
			zap.String("remoteStatus", remote.Status))
		return stored, nil
	}

	// Тот же статус — no-op без записи.
	if next == stored.Status {
		return stored, nil
	}

	job, err := s.applyTransition(ctx, kind, subjectID, next, remote.Error)
	if err != nil {
		if errors.Is(err, models.ErrStateConflict) {
			// Устаревший или внеочередной ответ: отбрасываем, не ломая
			// хранимое состояние и не пробрасывая ошибку вызывающему.
			return stored, nil
		}
		return nil, err
	}
	return job, nil
}

// GetStatus возвращает локальное состояние задачи.
func (s *generationServiceImpl) GetStatus(ctx context.Context, kind models.GenerationKind, subjectID uuid.UUID) (*models.GenerationJob, error) {
	if !kind.IsValid() || subjectID == uuid.Nil {
		return nil, models.ErrInvalidInput
	}
	return s.jobRepo.GetCurrent(ctx, s.db, subjectID, kind)
}

// applyTransition применяет переход в транзакции и публикует событие смены
// статуса. StateConflict логируется и возвращается вызывающему для решения.
func (s *generationServiceImpl) applyTransition(ctx context.Context, kind models.GenerationKind, subjectID uuid.UUID, next models.GenerationStatus, lastError *string) (*models.GenerationJob, error) {
	var job *models.GenerationJob
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		var txErr error
		job, txErr = s.jobRepo.ApplyTransition(ctx, tx, subjectID, kind, next, lastError)
		return txErr
	})
	if err != nil {
		if errors.Is(err, models.ErrStateConflict) {
			stateConflictsDropped.Inc()
		}
		return job, err
	}

	if pubErr := s.publisher.PublishStatusChanged(ctx, messaging.GenerationStatusEvent{
		SubjectID:  subjectID,
		Kind:       kind,
		Status:     job.Status,
		Error:      job.LastError,
		OccurredAt: time.Now().UTC(),
	}); pubErr != nil {
		// Событие — best effort: сбой брокера не откатывает переход.
		s.logger.Warn("Failed to publish status event",
			zap.String("subjectID", subjectID.String()),
			zap.Error(pubErr))
	}

	return job, nil
}
