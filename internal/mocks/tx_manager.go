package mocks

import (
	"context"

	"campaign-server/internal/interfaces"
)

// TxManager runs the callback directly without a real database transaction.
// BeginErr, when set, is returned instead of running the callback.
type TxManager struct {
	BeginErr error
}

func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.DBTX) error) error {
	if m.BeginErr != nil {
		return m.BeginErr
	}
	return fn(ctx, nil)
}

func (m *TxManager) WithSerializableTransaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.DBTX) error) error {
	if m.BeginErr != nil {
		return m.BeginErr
	}
	return fn(ctx, nil)
}

var _ interfaces.TxManager = (*TxManager)(nil)
