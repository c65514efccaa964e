package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campaign-server/internal/interfaces"
	"campaign-server/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compile-time check to ensure redisLocationCache implements LocationCache
var _ interfaces.LocationCache = (*redisLocationCache)(nil)

type redisLocationCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisLocationCache creates a new Redis-backed LocationCache.
// Кеш — read-through проекция: значение пишется сюда только после того, как
// удалённый gamemaster-сервис подтвердил запись.
func NewRedisLocationCache(client *redis.Client, logger *zap.Logger) interfaces.LocationCache {
	return &redisLocationCache{
		client: client,
		logger: logger.Named("RedisLocationCache"),
	}
}

func locationKey(campaignID, characterID uuid.UUID) string {
	return fmt.Sprintf("campaign:%s:character:%s:location", campaignID, characterID)
}

// Get возвращает закешированную локацию персонажа.
func (c *redisLocationCache) Get(ctx context.Context, campaignID, characterID uuid.UUID) (string, error) {
	val, err := c.client.Get(ctx, locationKey(campaignID, characterID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", models.ErrNotFound
		}
		c.logger.Error("Failed to read location from cache",
			zap.String("campaignID", campaignID.String()),
			zap.String("characterID", characterID.String()),
			zap.Error(err))
		return "", fmt.Errorf("failed to read location from cache: %w", err)
	}
	return val, nil
}

// Set записывает подтверждённую удалённым сервисом локацию.
func (c *redisLocationCache) Set(ctx context.Context, campaignID, characterID uuid.UUID, location string, ttl time.Duration) error {
	err := c.client.Set(ctx, locationKey(campaignID, characterID), location, ttl).Err()
	if err != nil {
		c.logger.Error("Failed to cache location",
			zap.String("campaignID", campaignID.String()),
			zap.String("characterID", characterID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to cache location: %w", err)
	}
	c.logger.Debug("Location cached",
		zap.String("campaignID", campaignID.String()),
		zap.String("characterID", characterID.String()),
		zap.String("location", location))
	return nil
}

// SetAll записывает набор локаций одним pipeline. Вызывается только после
// того, как массовая синхронизация принята удалённым сервисом целиком.
func (c *redisLocationCache) SetAll(ctx context.Context, campaignID uuid.UUID, locations map[uuid.UUID]string, ttl time.Duration) error {
	if len(locations) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for characterID, location := range locations {
		pipe.Set(ctx, locationKey(campaignID, characterID), location, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("Failed to cache locations in bulk",
			zap.String("campaignID", campaignID.String()),
			zap.Int("count", len(locations)),
			zap.Error(err))
		return fmt.Errorf("failed to cache locations in bulk: %w", err)
	}
	return nil
}

// Delete удаляет закешированную локацию персонажа.
func (c *redisLocationCache) Delete(ctx context.Context, campaignID, characterID uuid.UUID) error {
	if err := c.client.Del(ctx, locationKey(campaignID, characterID)).Err(); err != nil {
		return fmt.Errorf("failed to delete cached location: %w", err)
	}
	return nil
}
