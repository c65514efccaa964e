package mocks

import (
	"context"

	"campaign-server/internal/models"
	"campaign-server/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock GenerationService
type GenerationService struct {
	mock.Mock
}

func (m *GenerationService) StartGeneration(ctx context.Context, kind models.GenerationKind, subjectID uuid.UUID) (*models.GenerationJob, error) {
	args := m.Called(ctx, kind, subjectID)
	job, _ := args.Get(0).(*models.GenerationJob)
	return job, args.Error(1)
}
func (m *GenerationService) StartImageGeneration(ctx context.Context, campaignID uuid.UUID) (*models.GenerationJob, error) {
	args := m.Called(ctx, campaignID)
	job, _ := args.Get(0).(*models.GenerationJob)
	return job, args.Error(1)
}
func (m *GenerationService) PollStatus(ctx context.Context, kind models.GenerationKind, subjectID uuid.UUID) (*models.GenerationJob, error) {
	args := m.Called(ctx, kind, subjectID)
	job, _ := args.Get(0).(*models.GenerationJob)
	return job, args.Error(1)
}
func (m *GenerationService) GetStatus(ctx context.Context, kind models.GenerationKind, subjectID uuid.UUID) (*models.GenerationJob, error) {
	args := m.Called(ctx, kind, subjectID)
	job, _ := args.Get(0).(*models.GenerationJob)
	return job, args.Error(1)
}

var _ service.GenerationService = (*GenerationService)(nil)

// Mock LocationService
type LocationService struct {
	mock.Mock
}

func (m *LocationService) GetCharacterLocation(ctx context.Context, campaignID, characterID uuid.UUID) (*models.CharacterLocation, error) {
	args := m.Called(ctx, campaignID, characterID)
	loc, _ := args.Get(0).(*models.CharacterLocation)
	return loc, args.Error(1)
}
func (m *LocationService) SyncLocation(ctx context.Context, campaignID, characterID uuid.UUID, location string) (bool, error) {
	args := m.Called(ctx, campaignID, characterID, location)
	return args.Bool(0), args.Error(1)
}
func (m *LocationService) SyncAllLocations(ctx context.Context, campaignID uuid.UUID, locations map[uuid.UUID]string) (*models.LocationSyncReport, error) {
	args := m.Called(ctx, campaignID, locations)
	report, _ := args.Get(0).(*models.LocationSyncReport)
	return report, args.Error(1)
}

var _ service.LocationService = (*LocationService)(nil)

// Mock SessionService
type SessionService struct {
	mock.Mock
}

func (m *SessionService) InitializeSession(ctx context.Context, sessionID uuid.UUID, introContent string) (bool, error) {
	args := m.Called(ctx, sessionID, introContent)
	return args.Bool(0), args.Error(1)
}
func (m *SessionService) AppendMessage(ctx context.Context, sessionID uuid.UUID, kind models.MessageKind, content string) (*models.SessionMessage, error) {
	args := m.Called(ctx, sessionID, kind, content)
	msg, _ := args.Get(0).(*models.SessionMessage)
	return msg, args.Error(1)
}
func (m *SessionService) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]*models.SessionMessage, error) {
	args := m.Called(ctx, sessionID)
	msgs, _ := args.Get(0).([]*models.SessionMessage)
	return msgs, args.Error(1)
}

var _ service.SessionService = (*SessionService)(nil)
