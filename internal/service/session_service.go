package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"campaign-server/internal/interfaces"
	"campaign-server/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Коды PostgreSQL, по которым инициализатор распознаёт проигрыш гонки.
const (
	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"
)

// SessionService управляет сообщениями игровой сессии. Ключевая операция —
// идемпотентная инициализация: ровно одно вступительное сообщение гейм-мастера
// на сессию, сколько бы конкурентных вызовов ни пришло. Проигрыш гонки — не
// ошибка: сессия уже инициализирована кем-то другим, цель достигнута.
type SessionService interface {
	// InitializeSession записывает вступительное сообщение, если сессия ещё
	// пуста. Возвращает created = true только у вызова, который реально
	// вставил сообщение; проигравшие гонку получают created = false и nil err.
	InitializeSession(ctx context.Context, sessionID uuid.UUID, introContent string) (created bool, err error)

	// AppendMessage добавляет очередное сообщение в конец сессии.
	AppendMessage(ctx context.Context, sessionID uuid.UUID, kind models.MessageKind, content string) (*models.SessionMessage, error)

	// ListMessages возвращает все сообщения сессии в порядке sequence_number.
	ListMessages(ctx context.Context, sessionID uuid.UUID) ([]*models.SessionMessage, error)
}

type sessionServiceImpl struct {
	db      interfaces.DBTX
	txMgr   interfaces.TxManager
	msgRepo interfaces.SessionMessageRepository
	logger  *zap.Logger
}

// NewSessionService создает новый SessionService.
func NewSessionService(
	db interfaces.DBTX,
	txMgr interfaces.TxManager,
	msgRepo interfaces.SessionMessageRepository,
	logger *zap.Logger,
) SessionService {
	return &sessionServiceImpl{
		db:      db,
		txMgr:   txMgr,
		msgRepo: msgRepo,
		logger:  logger.Named("SessionService"),
	}
}

// InitializeSession: SERIALIZABLE-транзакция не даёт двум конкурентным
// вызовам одновременно увидеть пустую сессию; частичный уникальный индекс в
// БД страхует от аномалий на случай деградации уровня изоляции.
func (s *sessionServiceImpl) InitializeSession(ctx context.Context, sessionID uuid.UUID, introContent string) (bool, error) {
	if sessionID == uuid.Nil {
		return false, models.ErrInvalidInput
	}
	if strings.TrimSpace(introContent) == "" {
		// Пустое вступление не занимает слот: следующая попытка с настоящим
		// текстом обязана пройти.
		return false, models.ErrEmptyIntroduction
	}

	log := s.logger.With(zap.String("sessionID", sessionID.String()))

	var alreadyInitialized bool
	err := s.txMgr.WithSerializableTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		count, err := s.msgRepo.CountBySession(ctx, tx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to count session messages: %w", err)
		}
		if count > 0 {
			alreadyInitialized = true
			return nil
		}

		msg := &models.SessionMessage{
			ID:             uuid.New(),
			SessionID:      sessionID,
			SequenceNumber: 1,
			Kind:           models.MessageGM,
			Content:        introContent,
		}
		return s.msgRepo.Insert(ctx, tx, msg)
	})
	if err != nil {
		if isRaceLoss(err) {
			// Конкурент вставил вступление первым. Сообщение существует,
			// просто не наше.
			initializerRaceLosses.Inc()
			log.Debug("Lost session initialization race, intro already written")
			return false, nil
		}
		return false, err
	}
	if alreadyInitialized {
		return false, nil
	}

	log.Info("Session initialized with intro message")
	return true, nil
}

// AppendMessage вычисляет следующий sequence_number внутри транзакции;
// уникальный индекс (session_id, sequence_number) ловит гонку двух писателей.
func (s *sessionServiceImpl) AppendMessage(ctx context.Context, sessionID uuid.UUID, kind models.MessageKind, content string) (*models.SessionMessage, error) {
	if sessionID == uuid.Nil || !kind.IsValid() || content == "" {
		return nil, models.ErrInvalidInput
	}

	var msg *models.SessionMessage
	err := s.txMgr.WithSerializableTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		count, err := s.msgRepo.CountBySession(ctx, tx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to count session messages: %w", err)
		}
		if count == 0 {
			// Сессия без вступления не принимает сообщения.
			return models.ErrNotFound
		}

		msg = &models.SessionMessage{
			ID:             uuid.New(),
			SessionID:      sessionID,
			SequenceNumber: count + 1,
			Kind:           kind,
			Content:        content,
		}
		return s.msgRepo.Insert(ctx, tx, msg)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *sessionServiceImpl) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]*models.SessionMessage, error) {
	if sessionID == uuid.Nil {
		return nil, models.ErrInvalidInput
	}
	return s.msgRepo.ListBySession(ctx, s.db, sessionID)
}

// isRaceLoss: сбой сериализации или нарушение уникальности означают, что
// конкурентная транзакция успела первой.
func isRaceLoss(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgUniqueViolation
	}
	return false
}
