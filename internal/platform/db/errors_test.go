package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cashdesk/internal/shared"
)

func TestClassifyMapsPostgresCodes(t *testing.T) {
	cases := []struct {
		code string
		kind error
	}{
		{"40001", shared.ErrConflict},
		{"40P01", shared.ErrConflict},
		{"23505", shared.ErrConflict},
		{"08006", shared.ErrTransientStore},
		{"57P01", shared.ErrTransientStore},
	}
	for _, tc := range cases {
		err := Classify(fmt.Errorf("insert: %w", &pgconn.PgError{Code: tc.code}))
		require.ErrorIs(t, err, tc.kind, tc.code)
		require.True(t, shared.Retryable(err), tc.code)
	}
}

func TestClassifyLeavesUnknownErrorsAlone(t *testing.T) {
	raw := &pgconn.PgError{Code: "22P02"}
	err := Classify(raw)
	require.Nil(t, shared.Kind(err))
	require.False(t, shared.Retryable(err))
}

func TestClassifyDeadlineIsTransient(t *testing.T) {
	err := Classify(fmt.Errorf("query: %w", context.DeadlineExceeded))
	require.ErrorIs(t, err, shared.ErrTransientStore)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassifyKeepsExistingKind(t *testing.T) {
	in := fmt.Errorf("%w: reason required", shared.ErrValidation)
	out := Classify(in)
	require.Same(t, in, out)
	require.False(t, errors.Is(out, shared.ErrTransientStore))
}
