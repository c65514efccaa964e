package mocks

import (
	"context"

	"campaign-server/internal/client"
	"campaign-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock GamemasterClient
type GamemasterClient struct {
	mock.Mock
}

func (m *GamemasterClient) TriggerGeneration(ctx context.Context, kind models.GenerationKind, subjectID uuid.UUID) (bool, error) {
	args := m.Called(ctx, kind, subjectID)
	return args.Bool(0), args.Error(1)
}
func (m *GamemasterClient) TriggerImageGeneration(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	args := m.Called(ctx, campaignID)
	return args.Bool(0), args.Error(1)
}
func (m *GamemasterClient) GetStatus(ctx context.Context, kind models.GenerationKind, subjectID uuid.UUID) (*client.RemoteStatus, error) {
	args := m.Called(ctx, kind, subjectID)
	status, _ := args.Get(0).(*client.RemoteStatus)
	return status, args.Error(1)
}
func (m *GamemasterClient) GetCharacterLocation(ctx context.Context, campaignID, characterID uuid.UUID) (string, error) {
	args := m.Called(ctx, campaignID, characterID)
	return args.String(0), args.Error(1)
}
func (m *GamemasterClient) UpdateCharacterLocation(ctx context.Context, campaignID, characterID uuid.UUID, location string) error {
	args := m.Called(ctx, campaignID, characterID, location)
	return args.Error(0)
}
func (m *GamemasterClient) SyncAllLocations(ctx context.Context, campaignID uuid.UUID, locations map[uuid.UUID]string) (*client.SyncReport, error) {
	args := m.Called(ctx, campaignID, locations)
	report, _ := args.Get(0).(*client.SyncReport)
	return report, args.Error(1)
}

var _ client.GamemasterClient = (*GamemasterClient)(nil)
