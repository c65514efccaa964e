package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campaign-server/internal/client"
	"campaign-server/internal/interfaces"
	"campaign-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LocationService владеет правилом: удалённый gamemaster-сервис — единственный
// источник истины о том, где находится персонаж. Локальный Redis — это
// read-through проекция, которая никогда не пишется до подтверждения удалённой
// стороной. Два независимо развёрнутых сервиса не разделяют транзакцию,
// поэтому локальные записи — это предложения, которые должны пройти
// round-trip, прежде чем им можно доверять.
type LocationService interface {
	// GetCharacterLocation читает локацию: сперва удалённый сервис; при его
	// недоступности — локальный кеш с флагом Stale.
	GetCharacterLocation(ctx context.Context, campaignID, characterID uuid.UUID) (*models.CharacterLocation, error)

	// SyncLocation проталкивает локальное изменение локации на удалённый
	// сервис и обновляет кеш только после подтверждения. Неудачная запись
	// оставляет кеш нетронутым.
	SyncLocation(ctx context.Context, campaignID, characterID uuid.UUID, location string) (bool, error)

	// SyncAllLocations — массовый вариант для восстановления/инициализации.
	// Атомарен с точки зрения вызывающего: либо удалённый сервис принял все
	// локации и кеш обновлён, либо кеш не тронут.
	SyncAllLocations(ctx context.Context, campaignID uuid.UUID, locations map[uuid.UUID]string) (*models.LocationSyncReport, error)
}

type locationServiceImpl struct {
	gm       client.GamemasterClient
	cache    interfaces.LocationCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewLocationService создает новый LocationService.
func NewLocationService(gm client.GamemasterClient, cache interfaces.LocationCache, cacheTTL time.Duration, logger *zap.Logger) LocationService {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Minute
	}
	return &locationServiceImpl{
		gm:       gm,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger.Named("LocationService"),
	}
}

// GetCharacterLocation всегда предпочитает свежее удалённое чтение
// устаревшему локальному значению.
func (s *locationServiceImpl) GetCharacterLocation(ctx context.Context, campaignID, characterID uuid.UUID) (*models.CharacterLocation, error) {
	if campaignID == uuid.Nil || characterID == uuid.Nil {
		return nil, models.ErrInvalidInput
	}

	log := s.logger.With(
		zap.String("campaignID", campaignID.String()),
		zap.String("characterID", characterID.String()),
	)

	location, err := s.gm.GetCharacterLocation(ctx, campaignID, characterID)
	if err == nil {
		// Свежее значение освежает проекцию; сбой кеша чтение не ломает.
		if cacheErr := s.cache.Set(ctx, campaignID, characterID, location, s.cacheTTL); cacheErr != nil {
			log.Warn("Failed to refresh location cache", zap.Error(cacheErr))
		}
		return &models.CharacterLocation{
			CampaignID:  campaignID,
			CharacterID: characterID,
			Name:        location,
			Stale:       false,
		}, nil
	}

	if errors.Is(err, models.ErrNotFound) {
		// Удалённый сервис не знает персонажа — кеш тут не спасает.
		return nil, err
	}

	log.Warn("Remote location read failed, falling back to cache", zap.Error(err))
	cached, cacheErr := s.cache.Get(ctx, campaignID, characterID)
	if cacheErr != nil {
		if errors.Is(cacheErr, models.ErrNotFound) {
			return nil, fmt.Errorf("remote unavailable and no cached location: %w", models.ErrLocationUnknown)
		}
		return nil, cacheErr
	}

	staleLocationFallbacks.Inc()
	return &models.CharacterLocation{
		CampaignID:  campaignID,
		CharacterID: characterID,
		Name:        cached,
		Stale:       true,
	}, nil
}

// SyncLocation: удалённая запись, затем кеш. Никогда не наоборот — иначе при
// неудачном пуше локальное состояние разъедется с авторитетным.
func (s *locationServiceImpl) SyncLocation(ctx context.Context, campaignID, characterID uuid.UUID, location string) (bool, error) {
	if campaignID == uuid.Nil || characterID == uuid.Nil || location == "" {
		return false, models.ErrInvalidInput
	}

	if err := s.gm.UpdateCharacterLocation(ctx, campaignID, characterID, location); err != nil {
		s.logger.Warn("Remote location update failed, local cache left untouched",
			zap.String("campaignID", campaignID.String()),
			zap.String("characterID", characterID.String()),
			zap.Error(err))
		return false, err
	}

	if err := s.cache.Set(ctx, campaignID, characterID, location, s.cacheTTL); err != nil {
		// Удалённая запись прошла; устаревший кеш поправит следующее чтение.
		s.logger.Warn("Location synced remotely but cache refresh failed",
			zap.String("characterID", characterID.String()),
			zap.Error(err))
	}
	return true, nil
}

// SyncAllLocations обновляет кеш только если удалённый сервис принял все
// локации без единого отказа.
func (s *locationServiceImpl) SyncAllLocations(ctx context.Context, campaignID uuid.UUID, locations map[uuid.UUID]string) (*models.LocationSyncReport, error) {
	if campaignID == uuid.Nil || len(locations) == 0 {
		return nil, models.ErrInvalidInput
	}

	report, err := s.gm.SyncAllLocations(ctx, campaignID, locations)
	if err != nil {
		return nil, err
	}

	result := &models.LocationSyncReport{
		UpdatedCount:       report.UpdatedCount,
		FailedCharacterIDs: report.FailedUpdates,
	}

	if len(report.FailedUpdates) > 0 {
		// Частичный отказ: кеш не трогаем, вызывающий решает, что ретраить.
		s.logger.Warn("Bulk location sync partially rejected, cache left untouched",
			zap.String("campaignID", campaignID.String()),
			zap.Int("failed", len(report.FailedUpdates)))
		return result, fmt.Errorf("bulk sync rejected %d locations: %w", len(report.FailedUpdates), models.ErrRemoteRejected)
	}

	if err := s.cache.SetAll(ctx, campaignID, locations, s.cacheTTL); err != nil {
		s.logger.Warn("Locations synced remotely but bulk cache refresh failed",
			zap.String("campaignID", campaignID.String()),
			zap.Error(err))
	}
	return result, nil
}
