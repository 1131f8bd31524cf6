package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/cashdesk/internal/shared"
)

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UnitOfWork runs branch scoped read-then-write sequences atomically.
type UnitOfWork interface {
	// InBranch serialises fn against every other writer of the same branch.
	InBranch(ctx context.Context, branchID int64, fn func(ctx context.Context, q Querier) error) error
	// Read runs fn against a consistent snapshot of the branch without taking the write lock.
	Read(ctx context.Context, branchID int64, fn func(ctx context.Context, q Querier) error) error
	// ReadAll runs fn inside a read-only transaction that is not scoped to a branch.
	ReadAll(ctx context.Context, fn func(ctx context.Context, q Querier) error) error
}

const (
	lockBranchSQL = `SELECT id FROM branches WHERE id = $1 FOR UPDATE`
	findBranchSQL = `SELECT id FROM branches WHERE id = $1`
)

// PGUnitOfWork implements UnitOfWork on PostgreSQL using a branch row lock.
type PGUnitOfWork struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	retries int
}

// NewUnitOfWork constructs a PGUnitOfWork. timeout bounds each attempt; retries applies to
// Conflict and TransientStore failures only.
func NewUnitOfWork(pool *pgxpool.Pool, timeout time.Duration, retries int) *PGUnitOfWork {
	if retries < 0 {
		retries = 0
	}
	return &PGUnitOfWork{pool: pool, timeout: timeout, retries: retries}
}

// InBranch executes fn inside a read-committed transaction holding the branch row lock.
func (u *PGUnitOfWork) InBranch(ctx context.Context, branchID int64, fn func(context.Context, Querier) error) error {
	return u.run(ctx, branchID, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, lockBranchSQL, fn)
}

// Read executes fn inside a read-only repeatable-read transaction.
func (u *PGUnitOfWork) Read(ctx context.Context, branchID int64, fn func(context.Context, Querier) error) error {
	return u.run(ctx, branchID, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, findBranchSQL, fn)
}

// ReadAll executes fn inside a read-only transaction without resolving a branch.
func (u *PGUnitOfWork) ReadAll(ctx context.Context, fn func(context.Context, Querier) error) error {
	return u.run(ctx, 0, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, "", fn)
}

func (u *PGUnitOfWork) run(ctx context.Context, branchID int64, opts pgx.TxOptions, branchSQL string, fn func(context.Context, Querier) error) error {
	if u == nil || u.pool == nil {
		return errors.New("platform/db: unit of work not initialised")
	}
	var err error
	for attempt := 0; attempt <= u.retries; attempt++ {
		err = u.attempt(ctx, branchID, opts, branchSQL, fn)
		if err == nil || !shared.Retryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (u *PGUnitOfWork) attempt(ctx context.Context, branchID int64, opts pgx.TxOptions, branchSQL string, fn func(context.Context, Querier) error) error {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	tx, err := u.pool.BeginTx(ctx, opts)
	if err != nil {
		return Classify(fmt.Errorf("platform/db: begin tx: %w", err))
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if branchSQL != "" {
		var id int64
		if err := tx.QueryRow(ctx, branchSQL, branchID).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: branch %d", shared.ErrNotFound, branchID)
			}
			return Classify(fmt.Errorf("platform/db: lock branch: %w", err))
		}
	}

	if err := fn(ctx, tx); err != nil {
		return Classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Classify(fmt.Errorf("platform/db: commit tx: %w", err))
	}
	return nil
}
