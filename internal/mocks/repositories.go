package mocks

import (
	"context"
	"time"

	"campaign-server/internal/interfaces"
	"campaign-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock GenerationJobRepository
type GenerationJobRepository struct {
	mock.Mock
}

func (m *GenerationJobRepository) Create(ctx context.Context, querier interfaces.DBTX, job *models.GenerationJob) error {
	args := m.Called(ctx, querier, job)
	return args.Error(0)
}
func (m *GenerationJobRepository) GetCurrent(ctx context.Context, querier interfaces.DBTX, subjectID uuid.UUID, kind models.GenerationKind) (*models.GenerationJob, error) {
	args := m.Called(ctx, querier, subjectID, kind)
	job, _ := args.Get(0).(*models.GenerationJob)
	return job, args.Error(1)
}
func (m *GenerationJobRepository) ApplyTransition(ctx context.Context, querier interfaces.DBTX, subjectID uuid.UUID, kind models.GenerationKind, next models.GenerationStatus, lastError *string) (*models.GenerationJob, error) {
	args := m.Called(ctx, querier, subjectID, kind, next, lastError)
	job, _ := args.Get(0).(*models.GenerationJob)
	return job, args.Error(1)
}
func (m *GenerationJobRepository) ListBySubject(ctx context.Context, querier interfaces.DBTX, subjectID uuid.UUID, kind models.GenerationKind, limit int) ([]*models.GenerationJob, error) {
	args := m.Called(ctx, querier, subjectID, kind, limit)
	jobs, _ := args.Get(0).([]*models.GenerationJob)
	return jobs, args.Error(1)
}

var _ interfaces.GenerationJobRepository = (*GenerationJobRepository)(nil)

// Mock SessionMessageRepository
type SessionMessageRepository struct {
	mock.Mock
}

func (m *SessionMessageRepository) CountBySession(ctx context.Context, querier interfaces.DBTX, sessionID uuid.UUID) (int64, error) {
	args := m.Called(ctx, querier, sessionID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *SessionMessageRepository) Insert(ctx context.Context, querier interfaces.DBTX, msg *models.SessionMessage) error {
	args := m.Called(ctx, querier, msg)
	return args.Error(0)
}
func (m *SessionMessageRepository) ListBySession(ctx context.Context, querier interfaces.DBTX, sessionID uuid.UUID) ([]*models.SessionMessage, error) {
	args := m.Called(ctx, querier, sessionID)
	msgs, _ := args.Get(0).([]*models.SessionMessage)
	return msgs, args.Error(1)
}

var _ interfaces.SessionMessageRepository = (*SessionMessageRepository)(nil)

// Mock LocationCache
type LocationCache struct {
	mock.Mock
}

func (m *LocationCache) Get(ctx context.Context, campaignID, characterID uuid.UUID) (string, error) {
	args := m.Called(ctx, campaignID, characterID)
	return args.String(0), args.Error(1)
}
func (m *LocationCache) Set(ctx context.Context, campaignID, characterID uuid.UUID, location string, ttl time.Duration) error {
	args := m.Called(ctx, campaignID, characterID, location, ttl)
	return args.Error(0)
}
func (m *LocationCache) SetAll(ctx context.Context, campaignID uuid.UUID, locations map[uuid.UUID]string, ttl time.Duration) error {
	args := m.Called(ctx, campaignID, locations, ttl)
	return args.Error(0)
}
func (m *LocationCache) Delete(ctx context.Context, campaignID, characterID uuid.UUID) error {
	args := m.Called(ctx, campaignID, characterID)
	return args.Error(0)
}

var _ interfaces.LocationCache = (*LocationCache)(nil)
