package interfaces

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX абстрагирует выполнение запросов: ему удовлетворяют и *pgxpool.Pool,
// и pgx.Tx, поэтому репозитории работают как в транзакции, так и вне её.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxManager выполняет функцию в границах транзакции БД. Сервисы зависят от
// интерфейса, а не от конкретной реализации поверх pgxpool.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
	WithSerializableTransaction(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
}
