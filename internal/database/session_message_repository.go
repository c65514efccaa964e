package database

import (
	"context"
	"fmt"

	"campaign-server/internal/interfaces"
	"campaign-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	countSessionMessagesQuery = `SELECT COUNT(*) FROM session_messages WHERE session_id = $1`
	insertSessionMessageQuery = `
        INSERT INTO session_messages (id, session_id, sequence_number, kind, content, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
    `
	listSessionMessagesQuery = `
        SELECT id, session_id, sequence_number, kind, content, created_at
        FROM session_messages
        WHERE session_id = $1
        ORDER BY sequence_number ASC
    `
)

type pgSessionMessageRepository struct {
	logger *zap.Logger
}

// NewPgSessionMessageRepository создает новый экземпляр репозитория сообщений сессии.
func NewPgSessionMessageRepository(logger *zap.Logger) interfaces.SessionMessageRepository {
	return &pgSessionMessageRepository{
		logger: logger.Named("PgSessionMessageRepo"),
	}
}

// CountBySession возвращает количество сообщений в сессии.
func (r *pgSessionMessageRepository) CountBySession(ctx context.Context, querier interfaces.DBTX, sessionID uuid.UUID) (int64, error) {
	var count int64
	err := querier.QueryRow(ctx, countSessionMessagesQuery, sessionID).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count session messages",
			zap.String("sessionID", sessionID.String()),
			zap.Error(err))
		return 0, fmt.Errorf("failed to count session messages: %w", err)
	}
	return count, nil
}

// Insert вставляет сообщение. Для первого сообщения сессии вызов обязан идти
// внутри сериализуемой транзакции инициализатора; частичный уникальный индекс
// uniq_session_intro служит вторым барьером.
func (r *pgSessionMessageRepository) Insert(ctx context.Context, querier interfaces.DBTX, msg *models.SessionMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if !msg.Kind.IsValid() {
		return models.ErrInvalidInput
	}

	_, err := querier.Exec(ctx, insertSessionMessageQuery,
		msg.ID, msg.SessionID, msg.SequenceNumber, msg.Kind, msg.Content)
	if err != nil {
		r.logger.Error("Failed to insert session message",
			zap.String("sessionID", msg.SessionID.String()),
			zap.Int64("sequenceNumber", msg.SequenceNumber),
			zap.Error(err))
		return fmt.Errorf("failed to insert session message: %w", err)
	}
	return nil
}

// ListBySession возвращает все сообщения сессии в хронологическом порядке.
func (r *pgSessionMessageRepository) ListBySession(ctx context.Context, querier interfaces.DBTX, sessionID uuid.UUID) ([]*models.SessionMessage, error) {
	var messages []*models.SessionMessage
	err := pgxscan.Select(ctx, querier, &messages, listSessionMessagesQuery, sessionID)
	if err != nil {
		r.logger.Error("Failed to list session messages",
			zap.String("sessionID", sessionID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list session messages: %w", err)
	}
	return messages, nil
}
