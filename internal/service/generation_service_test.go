package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"campaign-server/internal/client"
	"campaign-server/internal/messaging"
	"campaign-server/internal/mocks"
	"campaign-server/internal/models"
	"campaign-server/internal/service"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func newGenerationService(
	jobRepo *mocks.GenerationJobRepository,
	gm *mocks.GamemasterClient,
	publisher *mocks.StatusEventPublisher,
	runner *mocks.Runner,
) service.GenerationService {
	return service.NewGenerationService(
		nil,
		&mocks.TxManager{},
		jobRepo,
		gm,
		publisher,
		runner,
		service.PollConfig{MaxAttempts: 3, RetryDelay: time.Millisecond},
		zap.NewNop(),
	)
}

func TestStartGeneration(t *testing.T) {
	ctx := context.Background()
	subjectID := uuid.New()
	kind := models.KindCampaignContent

	t.Run("Successful start triggers remote and records InProgress", func(t *testing.T) {
		jobRepo := new(mocks.GenerationJobRepository)
		gm := new(mocks.GamemasterClient)
		publisher := new(mocks.StatusEventPublisher)
		runner := &mocks.Runner{Inline: true}
		svc := newGenerationService(jobRepo, gm, publisher, runner)

		// Истории ещё нет: создается первая строка журнала.
		jobRepo.On("GetCurrent", ctx, mock.Anything, subjectID, kind).
			Return(nil, models.ErrNotFound).Once()
		jobRepo.On("Create", ctx, mock.Anything, mock.MatchedBy(func(job *models.GenerationJob) bool {
			assert.Equal(t, subjectID, job.SubjectID)
			assert.Equal(t, kind, job.Kind)
			assert.Equal(t, models.StatusNotStarted, job.Status)
			return true
		})).Return(nil).Once()

		runner.On("Submit", ctx, "trigger_generation", mock.Anything).
			Return(uuid.New(), nil).Once()

		// Inline-раннер выполняет триггер сразу.
		gm.On("TriggerGeneration", mock.Anything, kind, subjectID).Return(true, nil).Once()
		jobRepo.On("ApplyTransition", mock.Anything, mock.Anything, subjectID, kind, models.StatusInProgress, (*string)(nil)).
			Return(&models.GenerationJob{SubjectID: subjectID, Kind: kind, Status: models.StatusInProgress}, nil).Once()
		publisher.On("PublishStatusChanged", mock.Anything, mock.MatchedBy(func(event messaging.GenerationStatusEvent) bool {
			return event.Status == models.StatusInProgress && event.SubjectID == subjectID
		})).Return(nil).Once()

		job, err := svc.StartGeneration(ctx, kind, subjectID)

		assert.NoError(t, err)
		assert.NotNil(t, job)
		assert.Equal(t, models.StatusNotStarted, job.Status)
		jobRepo.AssertExpectations(t)
		gm.AssertExpectations(t)
		publisher.AssertExpectations(t)
		runner.AssertExpectations(t)
	})

	t.Run("Rejected while previous job is still running", func(t *testing.T) {
		jobRepo := new(mocks.GenerationJobRepository)
		gm := new(mocks.GamemasterClient)
		publisher := new(mocks.StatusEventPublisher)
		runner := &mocks.Runner{Inline: true}
		svc := newGenerationService(jobRepo, gm, publisher, runner)

		jobRepo.On("GetCurrent", ctx, mock.Anything, subjectID, kind).
			Return(&models.GenerationJob{SubjectID: subjectID, Kind: kind, Status: models.StatusInProgress}, nil).Once()

		job, err := svc.StartGeneration(ctx, kind, subjectID)

		assert.Nil(t, job)
		assert.True(t, errors.Is(err, models.ErrGenerationInProgress))
		jobRepo.AssertExpectations(t)
		gm.AssertNotCalled(t, "TriggerGeneration", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Concurrent start losing the unique index race maps to in-progress", func(t *testing.T) {
		jobRepo := new(mocks.GenerationJobRepository)
		gm := new(mocks.GamemasterClient)
		publisher := new(mocks.StatusEventPublisher)
		runner := &mocks.Runner{Inline: true}
		svc := newGenerationService(jobRepo, gm, publisher, runner)

		// Конкурент вставил свою строку между нашим чтением и вставкой:
		// uniq_generation_jobs_active отбивает вторую нетерминальную задачу.
		jobRepo.On("GetCurrent", ctx, mock.Anything, subjectID, kind).
			Return(nil, models.ErrNotFound).Once()
		jobRepo.On("Create", ctx, mock.Anything, mock.Anything).
			Return(fmt.Errorf("failed to create generation job: %w", &pgconn.PgError{
				Code:           "23505",
				ConstraintName: "uniq_generation_jobs_active",
			})).Once()

		job, err := svc.StartGeneration(ctx, kind, subjectID)

		assert.Nil(t, job)
		assert.True(t, errors.Is(err, models.ErrGenerationInProgress))
		jobRepo.AssertExpectations(t)
		runner.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
		gm.AssertNotCalled(t, "TriggerGeneration", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("New job allowed after terminal status", func(t *testing.T) {
		jobRepo := new(mocks.GenerationJobRepository)
		gm := new(mocks.GamemasterClient)
		publisher := new(mocks.StatusEventPublisher)
		runner := &mocks.Runner{Inline: true}
		svc := newGenerationService(jobRepo, gm, publisher, runner)

		jobRepo.On("GetCurrent", ctx, mock.Anything, subjectID, kind).
			Return(&models.GenerationJob{SubjectID: subjectID, Kind: kind, Status: models.StatusFailed}, nil).Once()
		jobRepo.On("Create", ctx, mock.Anything, mock.Anything).Return(nil).Once()
		runner.On("Submit", ctx, "trigger_generation", mock.Anything).Return(uuid.New(), nil).Once()
		gm.On("TriggerGeneration", mock.Anything, kind, subjectID).Return(true, nil).Once()
		jobRepo.On("ApplyTransition", mock.Anything, mock.Anything, subjectID, kind, models.StatusInProgress, (*string)(nil)).
			Return(&models.GenerationJob{SubjectID: subjectID, Kind: kind, Status: models.StatusInProgress}, nil).Once()
		publisher.On("PublishStatusChanged", mock.Anything, mock.Anything).Return(nil).Once()

		job, err := svc.StartGeneration(ctx, kind, subjectID)

		assert.NoError(t, err)
		assert.NotNil(t, job)
		jobRepo.AssertExpectations(t)
	})

	t.Run("Remote rejection is recorded as Failed with last error", func(t *testing.T) {
		jobRepo := new(mocks.GenerationJobRepository)
		gm := new(mocks.GamemasterClient)
		publisher := new(mocks.StatusEventPublisher)
		runner := &mocks.Runner{Inline: true}
		svc := newGenerationService(jobRepo, gm, publisher, runner)

		jobRepo.On("GetCurrent", ctx, mock.Anything, subjectID, kind).Return(nil, models.ErrNotFound).Once()
		jobRepo.On("Create", ctx, mock.Anything, mock.Anything).Return(nil).Once()
		runner.On("Submit", ctx, "trigger_generation", mock.Anything).Return(uuid.New(), nil).Once()
		gm.On("TriggerGeneration", mock.Anything, kind, subjectID).
			Return(false, models.ErrRemoteRejected).Once()
		failedMsg := models.ErrRemoteRejected.Error()
		jobRepo.On("ApplyTransition", mock.Anything, mock.Anything, subjectID, kind, models.StatusFailed, &failedMsg).
			Return(&models.GenerationJob{SubjectID: subjectID, Kind: kind, Status: models.StatusFailed, LastError: &failedMsg}, nil).Once()
		publisher.On("PublishStatusChanged", mock.Anything, mock.MatchedBy(func(event messaging.GenerationStatusEvent) bool {
			return event.Status == models.StatusFailed
		})).Return(nil).Once()

		job, err := svc.StartGeneration(ctx, kind, subjectID)

		// Сам вызов успешен: отказ триггера наблюдается через журнал.
		assert.NoError(t, err)
		assert.NotNil(t, job)
		jobRepo.AssertExpectations(t)
		gm.AssertExpectations(t)
	})

	t.Run("Invalid input", func(t *testing.T) {
		svc := newGenerationService(new(mocks.GenerationJobRepository), new(mocks.GamemasterClient), new(mocks.StatusEventPublisher), &mocks.Runner{})

		_, err := svc.StartGeneration(ctx, models.GenerationKind("bogus"), subjectID)
		assert.True(t, errors.Is(err, models.ErrInvalidInput))

		_, err = svc.StartGeneration(ctx, kind, uuid.Nil)
		assert.True(t, errors.Is(err, models.ErrInvalidInput))
	})
}

func TestStartImageGeneration(t *testing.T) {
	ctx := context.Background()
	campaignID := uuid.New()

	t.Run("Completed campaign moves to ImagesInProgress", func(t *testing.T) {
		jobRepo := new(mocks.GenerationJobRepository)
		gm := new(mocks.GamemasterClient)
		publisher := new(mocks.StatusEventPublisher)
		svc := newGenerationService(jobRepo, gm, publisher, &mocks.Runner{})

		jobRepo.On("GetCurrent", ctx, mock.Anything, campaignID, models.KindCampaignContent).
			Return(&models.GenerationJob{SubjectID: campaignID, Kind: models.KindCampaignContent, Status: models.StatusCompleted}, nil).Once()
		gm.On("TriggerImageGeneration", ctx, campaignID).Return(true, nil).Once()
		jobRepo.On("ApplyTransition", ctx, mock.Anything, campaignID, models.KindCampaignContent, models.StatusImagesInProgress, (*string)(nil)).
			Return(&models.GenerationJob{SubjectID: campaignID, Status: models.StatusImagesInProgress}, nil).Once()
		publisher.On("PublishStatusChanged", mock.Anything, mock.Anything).Return(nil).Once()

		job, err := svc.StartImageGeneration(ctx, campaignID)

		assert.NoError(t, err)
		assert.Equal(t, models.StatusImagesInProgress, job.Status)
		jobRepo.AssertExpectations(t)
		gm.AssertExpectations(t)
	})

	t.Run("Refused when content generation not completed", func(t *testing.T) {
		jobRepo := new(mocks.GenerationJobRepository)
		gm := new(mocks.GamemasterClient)
		svc := newGenerationService(jobRepo, gm, new(mocks.StatusEventPublisher), &mocks.Runner{})

		jobRepo.On("GetCurrent", ctx, mock.Anything, campaignID, models.KindCampaignContent).
			Return(&models.GenerationJob{SubjectID: campaignID, Status: models.StatusInProgress}, nil).Once()

		job, err := svc.StartImageGeneration(ctx, campaignID)

		assert.Nil(t, job)
		assert.True(t, errors.Is(err, models.ErrStateConflict))
		gm.AssertNotCalled(t, "TriggerImageGeneration", mock.Anything, mock.Anything)
	})
}

func TestPollStatus(t *testing.T) {
	ctx := context.Background()
	subjectID := uuid.New()
	kind := models.KindCampaignContent

	t.Run("Remote Completed reconciled into local log", func(t *testing.T) {
		jobRepo := new(mocks.GenerationJobRepository)
		gm := new(mocks.GamemasterClient)
		publisher := new(mocks.StatusEventPublisher)
		svc := newGenerationService(jobRepo, gm, publisher, &mocks.Runner{})

		jobRepo.On("GetCurrent", ctx, mock.Anything, subjectID, kind).
			Return(&models.GenerationJob{SubjectID: subjectID, Kind: kind, Status: models.StatusInProgress}, nil).Once()
		gm.On("GetStatus", ctx, kind, subjectID).
			Return(&client.RemoteStatus{Status: "Completed"}, nil).Once()
		jobRepo.On("ApplyTransition", ctx, mock.Anything, subjectID, kind, models.StatusCompleted, (*string)(nil)).
			Return(&models.GenerationJob{SubjectID: subjectID, Kind: kind, Status: models.StatusCompleted}, nil).Once()
		publisher.On("PublishStatusChanged", mock.Anything, mock.Anything).Return(nil).Once()

		job, err := svc.PollStatus(ctx, kind, subjectID)

		assert.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, job.Status)
		jobRepo.AssertExpectations(t)
		gm.AssertExpectations(t)
	})

	t.Run("Terminal local state short-circuits without remote call", func(t *testing.T) {
		jobRepo := new(mocks.GenerationJobRepository)
		gm := new(mocks.GamemasterClient)
		svc := newGenerationService(jobRepo, gm, new(mocks.StatusEventPublisher), &mocks.Runner{})

		jobRepo.On("GetCurrent", ctx, mock.Anything, subjectID, kind).
			Return(&models.GenerationJob{SubjectID: subjectID, Kind: kind, Status: models.StatusImagesCompleted}, nil).Once()

		job, err := svc.PollStatus(ctx, kind, subjectID)

		assert.NoError(t, err)
		assert.Equal(t, models.StatusImagesCompleted, job.Status)
		gm.AssertNotCalled(t, "GetStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Transient errors retried then last known state returned", func(t *testing.T) {
		jobRepo := new(mocks.GenerationJobRepository)
		gm := new(mocks.GamemasterClient)
		svc := newGenerationService(jobRepo, gm, new(mocks.StatusEventPublisher), &mocks.Runner{})

		stored := &models.GenerationJob{SubjectID: subjectID, Kind: kind, Status: models.StatusInProgress}
		jobRepo.On("GetCurrent", ctx, mock.Anything, subjectID, kind).Return(stored, nil).Once()
		gm.On("GetStatus", ctx, kind, subjectID).
			Return(nil, models.ErrTransient).Times(3)

		job, err := svc.PollStatus(ctx, kind, subjectID)

		// Попытки исчерпаны: локальное состояние не тронуто, Failed не выдуман.
		assert.True(t, errors.Is(err, models.ErrTransient))
		assert.Equal(t, models.StatusInProgress, job.Status)
		jobRepo.AssertNotCalled(t, "ApplyTransition",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		gm.AssertExpectations(t)
	})

	t.Run("Transient error recovers on second attempt", func(t *testing.T) {
		jobRepo := new(mocks.GenerationJobRepository)
		gm := new(mocks.GamemasterClient)
		publisher := new(mocks.StatusEventPublisher)
		svc := newGenerationService(jobRepo, gm, publisher, &mocks.Runner{})

		jobRepo.On("GetCurrent", ctx, mock.Anything, subjectID, kind).
			Return(&models.GenerationJob{SubjectID: subjectID, Kind: kind, Status: models.StatusInProgress}, nil).Once()
		gm.On("GetStatus", ctx, kind, subjectID).Return(nil, models.ErrTransient).Once()
		gm.On("GetStatus", ctx, kind, subjectID).
			Return(&client.RemoteStatus{Status: "Completed"}, nil).Once()
		jobRepo.On("ApplyTransition", ctx, mock.Anything, subjectID, kind, models.StatusCompleted, (*string)(nil)).
			Return(&models.GenerationJob{SubjectID: subjectID, Kind: kind, Status: models.StatusCompleted}, nil).Once()
		publisher.On("PublishStatusChanged", mock.Anything, mock.Anything).Return(nil).Once()

		job, err := svc.PollStatus(ctx, kind, subjectID)

		assert.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, job.Status)
		gm.AssertExpectations(t)
	})

	t.Run("Remote NotFound returned without retries", func(t *testing.T) {
		jobRepo := new(mocks.GenerationJobRepository)
		gm := new(mocks.GamemasterClient)
		svc := newGenerationService(jobRepo, gm, new(mocks.StatusEventPublisher), &mocks.Runner{})

		stored := &models.GenerationJob{SubjectID: subjectID, Kind: kind, Status: models.StatusInProgress}
		jobRepo.On("GetCurrent", ctx, mock.Anything, subjectID, kind).Return(stored, nil).Once()
		gm.On("GetStatus", ctx, kind, subjectID).Return(nil, models.ErrNotFound).Once()

		job, err := svc.PollStatus(ctx, kind, subjectID)

		assert.True(t, errors.Is(err, models.ErrNotFound))
		assert.Equal(t, models.StatusInProgress, job.Status)
		gm.AssertExpectations(t)
	})

	t.Run("Same remote status is a no-op", func(t *testing.T) {
		jobRepo := new(mocks.GenerationJobRepository)
		gm := new(mocks.GamemasterClient)
		svc := newGenerationService(jobRepo, gm, new(mocks.StatusEventPublisher), &mocks.Runner{})

		jobRepo.On("GetCurrent", ctx, mock.Anything, subjectID, kind).
			Return(&models.GenerationJob{SubjectID: subjectID, Kind: kind, Status: models.StatusInProgress}, nil).Once()
		gm.On("GetStatus", ctx, kind, subjectID).
			Return(&client.RemoteStatus{Status: "InProgress"}, nil).Once()

		job, err := svc.PollStatus(ctx, kind, subjectID)

		assert.NoError(t, err)
		assert.Equal(t, models.StatusInProgress, job.Status)
		jobRepo.AssertNotCalled(t, "ApplyTransition",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("State conflict from stale remote answer dropped silently", func(t *testing.T) {
		jobRepo := new(mocks.GenerationJobRepository)
		gm := new(mocks.GamemasterClient)
		svc := newGenerationService(jobRepo, gm, new(mocks.StatusEventPublisher), &mocks.Runner{})

		stored := &models.GenerationJob{SubjectID: subjectID, Kind: kind, Status: models.StatusCompleted}
		jobRepo.On("GetCurrent", ctx, mock.Anything, subjectID, kind).Return(stored, nil).Once()
		// Устаревший ответ: удалённый сервис ещё видит InProgress.
		gm.On("GetStatus", ctx, kind, subjectID).
			Return(&client.RemoteStatus{Status: "InProgress"}, nil).Once()
		jobRepo.On("ApplyTransition", ctx, mock.Anything, subjectID, kind, models.StatusInProgress, (*string)(nil)).
			Return(stored, models.ErrStateConflict).Once()

		job, err := svc.PollStatus(ctx, kind, subjectID)

		assert.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, job.Status)
		jobRepo.AssertExpectations(t)
	})

	t.Run("Unknown remote status keeps local state", func(t *testing.T) {
		jobRepo := new(mocks.GenerationJobRepository)
		gm := new(mocks.GamemasterClient)
		svc := newGenerationService(jobRepo, gm, new(mocks.StatusEventPublisher), &mocks.Runner{})

		stored := &models.GenerationJob{SubjectID: subjectID, Kind: kind, Status: models.StatusInProgress}
		jobRepo.On("GetCurrent", ctx, mock.Anything, subjectID, kind).Return(stored, nil).Once()
		gm.On("GetStatus", ctx, kind, subjectID).
			Return(&client.RemoteStatus{Status: "Paused"}, nil).Once()

		job, err := svc.PollStatus(ctx, kind, subjectID)

		assert.NoError(t, err)
		assert.Equal(t, models.StatusInProgress, job.Status)
		jobRepo.AssertNotCalled(t, "ApplyTransition",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
