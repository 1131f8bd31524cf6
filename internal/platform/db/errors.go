package db

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/cashdesk/internal/shared"
)

// Classify attaches a shared error kind to raw pgx failures. Errors already carrying a kind
// are returned untouched.
func Classify(err error) error {
	if err == nil || shared.Kind(err) != nil {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "23505":
			// serialization_failure, deadlock_detected, lock_not_available, unique_violation
			return fmt.Errorf("%w: %w", shared.ErrConflict, err)
		case "08000", "08001", "08003", "08004", "08006", "53300", "57P01", "57P02", "57P03":
			return fmt.Errorf("%w: %w", shared.ErrTransientStore, err)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", shared.ErrTransientStore, err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return fmt.Errorf("%w: %w", shared.ErrTransientStore, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", shared.ErrTransientStore, err)
	}
	return err
}
