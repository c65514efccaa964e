package database

import (
	"context"
	"errors"
	"fmt"

	"campaign-server/internal/interfaces"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// TxManager предоставляет унифицированные методы для работы с транзакциями
type TxManager struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

var _ interfaces.TxManager = (*TxManager)(nil)

// NewTxManager создает новый помощник транзакций
func NewTxManager(db *pgxpool.Pool, logger *zap.Logger) *TxManager {
	return &TxManager{
		db:     db,
		logger: logger,
	}
}

// WithTransaction выполняет функцию в транзакции с автоматическим rollback при ошибке
func (h *TxManager) WithTransaction(
	ctx context.Context,
	fn func(ctx context.Context, tx interfaces.DBTX) error,
) error {
	return h.run(ctx, pgx.TxOptions{}, fn)
}

// WithSerializableTransaction выполняет функцию в транзакции с уровнем изоляции
// SERIALIZABLE. Используется идемпотентным инициализатором сессии, чтобы два
// конкурентных вызова не могли оба увидеть count = 0.
func (h *TxManager) WithSerializableTransaction(
	ctx context.Context,
	fn func(ctx context.Context, tx interfaces.DBTX) error,
) error {
	return h.run(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
}

func (h *TxManager) run(
	ctx context.Context,
	opts pgx.TxOptions,
	fn func(ctx context.Context, tx interfaces.DBTX) error,
) error {
	tx, err := h.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				h.logger.Error("Failed to rollback transaction after panic",
					zap.Error(rollbackErr),
					zap.Any("panic", p))
			}
			panic(p) // re-throw panic after rollback
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			h.logger.Error("Failed to rollback transaction",
				zap.Error(rollbackErr),
				zap.NamedError("original_error", err))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
