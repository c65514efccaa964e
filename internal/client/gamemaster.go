package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"campaign-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RemoteStatus — ответ gamemaster-сервиса на запрос статуса генерации.
// Статусы приходят в PascalCase ("InProgress", "ImagesCompleted" и т.д.).
type RemoteStatus struct {
	Status      string     `json:"status"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// MapStatus преобразует строку статуса удалённого сервиса в локальный enum.
func (rs *RemoteStatus) MapStatus() (models.GenerationStatus, error) {
	switch rs.Status {
	case "NotStarted":
		return models.StatusNotStarted, nil
	case "InProgress":
		return models.StatusInProgress, nil
	case "Completed":
		return models.StatusCompleted, nil
	case "Failed":
		return models.StatusFailed, nil
	case "ImagesInProgress":
		return models.StatusImagesInProgress, nil
	case "ImagesCompleted":
		return models.StatusImagesCompleted, nil
	default:
		return "", fmt.Errorf("unknown remote generation status %q: %w", rs.Status, models.ErrInvalidInput)
	}
}

// SyncReport — ответ удалённого сервиса на массовую синхронизацию локаций.
type SyncReport struct {
	UpdatedCount  int         `json:"updated_count"`
	FailedUpdates []uuid.UUID `json:"failed_updates,omitempty"`
}

// GamemasterClient определяет интерфейс удалённого сервиса генерации контента.
// Все вызовы несут собственный таймаут, отличный от таймаута запроса
// вызывающей стороны: сама генерация может легитимно занимать минуты, клиент
// лишь подтверждает приём или читает прогресс.
type GamemasterClient interface {
	// TriggerGeneration запускает генерацию контента для субъекта.
	// Возвращает true, когда удалённый сервис принял задачу; сама работа
	// выполняется там асинхронно.
	TriggerGeneration(ctx context.Context, kind models.GenerationKind, subjectID uuid.UUID) (bool, error)

	// TriggerImageGeneration запускает генерацию изображений для кампании,
	// текстовый контент которой уже готов.
	TriggerImageGeneration(ctx context.Context, campaignID uuid.UUID) (bool, error)

	// GetStatus запрашивает текущий статус генерации субъекта.
	GetStatus(ctx context.Context, kind models.GenerationKind, subjectID uuid.UUID) (*RemoteStatus, error)

	// GetCharacterLocation читает авторитетную локацию персонажа.
	GetCharacterLocation(ctx context.Context, campaignID, characterID uuid.UUID) (string, error)

	// UpdateCharacterLocation предлагает удалённому сервису новую локацию.
	UpdateCharacterLocation(ctx context.Context, campaignID, characterID uuid.UUID, location string) error

	// SyncAllLocations массово синхронизирует локации кампании.
	SyncAllLocations(ctx context.Context, campaignID uuid.UUID, locations map[uuid.UUID]string) (*SyncReport, error)
}

// Timeouts задаёт таймауты по классам эндпоинтов gamemaster-сервиса.
type Timeouts struct {
	Trigger  time.Duration
	Status   time.Duration
	Location time.Duration
}

// gamemasterClient реализует GamemasterClient.
type gamemasterClient struct {
	baseURL      string
	httpClient   *http.Client
	logger       *zap.Logger
	serviceToken string
	timeouts     Timeouts
}

// NewGamemasterClient создает новый клиент для gamemaster-сервиса.
func NewGamemasterClient(baseURL, serviceToken string, timeouts Timeouts, logger *zap.Logger) (GamemasterClient, error) {
	_, err := url.ParseRequestURI(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL for gamemaster service: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	if timeouts.Trigger <= 0 {
		timeouts.Trigger = 30 * time.Second
	}
	if timeouts.Status <= 0 {
		timeouts.Status = 60 * time.Second
	}
	if timeouts.Location <= 0 {
		timeouts.Location = 30 * time.Second
	}

	return &gamemasterClient{
		baseURL: baseURL,
		// Таймаут на попытку задаётся контекстом per-call; клиентский Timeout
		// оставлен как страховка от зависших соединений.
		httpClient:   &http.Client{Timeout: 5 * time.Minute},
		logger:       logger.Named("GamemasterClient"),
		serviceToken: serviceToken,
		timeouts:     timeouts,
	}, nil
}

// doRequest выполняет HTTP запрос с межсервисным токеном и декодирует ответ в out.
// Ошибки транспорта и 5xx мапятся в models.ErrTransient, 404 — в
// models.ErrNotFound, остальные не-2xx — в models.ErrRemoteRejected.
func (c *gamemasterClient) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.serviceToken != "" {
		req.Header.Set("X-Internal-Service-Token", c.serviceToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Таймауты и отказ соединения — транзиентные ошибки, их можно ретраить.
		return fmt.Errorf("gamemaster request %s %s failed: %v: %w", method, path, err, models.ErrTransient)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("failed to decode gamemaster response: %w", err)
			}
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return models.ErrNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("Gamemaster returned server error",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("path", path),
			zap.ByteString("body", respBody))
		return fmt.Errorf("gamemaster returned status %d: %w", resp.StatusCode, models.ErrTransient)
	default:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("Gamemaster rejected request",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("path", path),
			zap.ByteString("body", respBody))
		return fmt.Errorf("gamemaster returned status %d: %w", resp.StatusCode, models.ErrRemoteRejected)
	}
}

type triggerResponse struct {
	Accepted bool    `json:"accepted"`
	Message  *string `json:"message,omitempty"`
}

// TriggerGeneration отправляет запрос на генерацию. Вызов неблокирующий
// относительно самой генерации: подтверждается только приём задачи.
func (c *gamemasterClient) TriggerGeneration(ctx context.Context, kind models.GenerationKind, subjectID uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Trigger)
	defer cancel()

	path := fmt.Sprintf("/generate/%s/%s", kind, subjectID)
	var resp triggerResponse
	if err := c.doRequest(ctx, http.MethodPost, path, struct{}{}, &resp); err != nil {
		return false, err
	}
	if !resp.Accepted {
		msg := "generation request not accepted"
		if resp.Message != nil {
			msg = *resp.Message
		}
		return false, fmt.Errorf("%s: %w", msg, models.ErrRemoteRejected)
	}

	c.logger.Info("Generation triggered on gamemaster",
		zap.String("kind", string(kind)),
		zap.String("subjectID", subjectID.String()))
	return true, nil
}

// TriggerImageGeneration отправляет запрос на генерацию изображений кампании.
func (c *gamemasterClient) TriggerImageGeneration(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Trigger)
	defer cancel()

	path := fmt.Sprintf("/generate/images/%s", campaignID)
	var resp triggerResponse
	if err := c.doRequest(ctx, http.MethodPost, path, struct{}{}, &resp); err != nil {
		return false, err
	}
	if !resp.Accepted {
		msg := "image generation request not accepted"
		if resp.Message != nil {
			msg = *resp.Message
		}
		return false, fmt.Errorf("%s: %w", msg, models.ErrRemoteRejected)
	}

	c.logger.Info("Image generation triggered on gamemaster",
		zap.String("campaignID", campaignID.String()))
	return true, nil
}

// GetStatus запрашивает статус генерации субъекта.
func (c *gamemasterClient) GetStatus(ctx context.Context, kind models.GenerationKind, subjectID uuid.UUID) (*RemoteStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Status)
	defer cancel()

	path := fmt.Sprintf("/status/%s/%s", kind, subjectID)
	var status RemoteStatus
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

type locationResponse struct {
	Location string `json:"location"`
}

// GetCharacterLocation читает локацию персонажа у удалённого сервиса.
func (c *gamemasterClient) GetCharacterLocation(ctx context.Context, campaignID, characterID uuid.UUID) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Location)
	defer cancel()

	path := fmt.Sprintf("/location/%s/%s", campaignID, characterID)
	var resp locationResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Location, nil
}

type updateLocationRequest struct {
	Location string `json:"location"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// UpdateCharacterLocation предлагает удалённому сервису новую локацию персонажа.
func (c *gamemasterClient) UpdateCharacterLocation(ctx context.Context, campaignID, characterID uuid.UUID, location string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Location)
	defer cancel()

	path := fmt.Sprintf("/location/%s/%s", campaignID, characterID)
	var resp successResponse
	if err := c.doRequest(ctx, http.MethodPost, path, updateLocationRequest{Location: location}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("location update not acknowledged: %w", models.ErrRemoteRejected)
	}
	return nil
}

type syncLocationsRequest struct {
	CharacterLocations map[string]string `json:"character_locations"`
}

type syncLocationsResponse struct {
	Success       bool     `json:"success"`
	UpdatedCount  int      `json:"updated_count"`
	FailedUpdates []string `json:"failed_updates,omitempty"`
}

// SyncAllLocations массово синхронизирует локации кампании с удалённым сервисом.
func (c *gamemasterClient) SyncAllLocations(ctx context.Context, campaignID uuid.UUID, locations map[uuid.UUID]string) (*SyncReport, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Location)
	defer cancel()

	payload := syncLocationsRequest{CharacterLocations: make(map[string]string, len(locations))}
	for characterID, location := range locations {
		payload.CharacterLocations[characterID.String()] = location
	}

	path := fmt.Sprintf("/location/%s/sync", campaignID)
	var resp syncLocationsResponse
	if err := c.doRequest(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("bulk location sync not acknowledged: %w", models.ErrRemoteRejected)
	}

	report := &SyncReport{UpdatedCount: resp.UpdatedCount}
	for _, raw := range resp.FailedUpdates {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.logger.Warn("Gamemaster returned unparsable failed character id",
				zap.String("value", raw))
			continue
		}
		report.FailedUpdates = append(report.FailedUpdates, id)
	}
	return report, nil
}
