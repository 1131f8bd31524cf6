package dividend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/cashdesk/internal/money"
	"github.com/odyssey-erp/cashdesk/internal/platform/db"
	"github.com/odyssey-erp/cashdesk/internal/shared"
)

// Repository persists dividend spend requests.
type Repository interface {
	Insert(ctx context.Context, q db.Querier, r Request) error
	LoadForUpdate(ctx context.Context, q db.Querier, branchID int64, id uuid.UUID) (Request, error)
	UpdateReview(ctx context.Context, q db.Querier, u ReviewUpdate) error
	Get(ctx context.Context, q db.Querier, branchID int64, id uuid.UUID) (Request, error)
	List(ctx context.Context, q db.Querier, branchID int64, f ListFilter) ([]Request, error)
	ListForBalance(ctx context.Context, q db.Querier, branchID int64, asOf time.Time) ([]Request, error)
}

// ExpenseTypes is the external expense type registry.
type ExpenseTypes interface {
	IsActive(ctx context.Context, q db.Querier, id int64) (bool, error)
}

// PGRepository implements Repository on dividend_requests.
type PGRepository struct{}

// NewPGRepository constructs the repository.
func NewPGRepository() *PGRepository {
	return &PGRepository{}
}

const requestColumns = `id, branch_id, requested_by, subject, amount, expense_type_id, reason,
opex_portion, dividend_portion, status, reviewed_by, review_note, reviewed_at, created_at, updated_at`

// Insert stores a new request.
func (PGRepository) Insert(ctx context.Context, q db.Querier, r Request) error {
	_, err := q.Exec(ctx, `INSERT INTO dividend_requests (`+requestColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, NULL, NULL, $11, $11)`,
		r.ID, r.BranchID, r.RequestedBy, r.Subject, r.Amount.Minor(), r.ExpenseTypeID, r.Reason,
		r.OpexPortion.Minor(), r.DividendPortion.Minor(), string(r.Status), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("dividend: insert request: %w", err)
	}
	return nil
}

// LoadForUpdate locks the request row.
func (PGRepository) LoadForUpdate(ctx context.Context, q db.Querier, branchID int64, id uuid.UUID) (Request, error) {
	row := q.QueryRow(ctx, `SELECT `+requestColumns+` FROM dividend_requests
WHERE id = $1 AND branch_id = $2 FOR UPDATE`, id, branchID)
	return scanOne(row, id)
}

// UpdateReview records the review outcome of a still pending request.
func (PGRepository) UpdateReview(ctx context.Context, q db.Querier, u ReviewUpdate) error {
	tag, err := q.Exec(ctx, `UPDATE dividend_requests
SET status = $2, reviewed_by = $3, review_note = $4, reviewed_at = $5, updated_at = $5
WHERE id = $1 AND status = $6`, u.ID, string(u.Status), u.ReviewedBy, u.Note, u.At, string(StatusPending))
	if err != nil {
		return fmt.Errorf("dividend: update review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: request %s changed concurrently", shared.ErrConflict, u.ID)
	}
	return nil
}

// Get loads one request of the branch.
func (PGRepository) Get(ctx context.Context, q db.Querier, branchID int64, id uuid.UUID) (Request, error) {
	row := q.QueryRow(ctx, `SELECT `+requestColumns+` FROM dividend_requests
WHERE id = $1 AND branch_id = $2`, id, branchID)
	return scanOne(row, id)
}

// List returns branch requests newest first.
func (PGRepository) List(ctx context.Context, q db.Querier, branchID int64, f ListFilter) ([]Request, error) {
	var status *string
	if f.Status != "" {
		s := string(f.Status)
		status = &s
	}
	rows, err := q.Query(ctx, `SELECT `+requestColumns+` FROM dividend_requests
WHERE branch_id = $1 AND ($2::text IS NULL OR status = $2)
ORDER BY created_at DESC, id
LIMIT $3`, branchID, status, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("dividend: list requests: %w", err)
	}
	return scanAll(rows)
}

// ListForBalance returns the requests that can still affect a bucket at asOf. Requests that
// were rejected before asOf without an OpEx portion no longer contribute and are skipped.
func (PGRepository) ListForBalance(ctx context.Context, q db.Querier, branchID int64, asOf time.Time) ([]Request, error) {
	rows, err := q.Query(ctx, `SELECT `+requestColumns+` FROM dividend_requests
WHERE branch_id = $1 AND created_at <= $2
AND NOT (status = $3 AND opex_portion = 0 AND reviewed_at <= $2)
ORDER BY created_at, id`, branchID, asOf, string(StatusRejected))
	if err != nil {
		return nil, fmt.Errorf("dividend: list for balance: %w", err)
	}
	return scanAll(rows)
}

func scanOne(row pgx.Row, id uuid.UUID) (Request, error) {
	r, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, fmt.Errorf("%w: dividend request %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return Request{}, fmt.Errorf("dividend: scan request: %w", err)
	}
	return r, nil
}

func scanAll(rows pgx.Rows) ([]Request, error) {
	defer rows.Close()
	var out []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("dividend: scan request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dividend: iterate requests: %w", err)
	}
	return out, nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		r                      Request
		amount, opex, dividend int64
		status                 string
		note                   *string
	)
	if err := row.Scan(&r.ID, &r.BranchID, &r.RequestedBy, &r.Subject, &amount, &r.ExpenseTypeID, &r.Reason,
		&opex, &dividend, &status, &r.ReviewedBy, &note, &r.ReviewedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Request{}, err
	}
	r.Amount = money.New(amount)
	r.OpexPortion = money.New(opex)
	r.DividendPortion = money.New(dividend)
	r.Status = Status(status)
	if note != nil {
		r.ReviewNote = *note
	}
	return r, nil
}

// PGExpenseTypes checks the expense_types registry.
type PGExpenseTypes struct{}

// IsActive reports whether id names an active expense type. Unknown ids are inactive.
func (PGExpenseTypes) IsActive(ctx context.Context, q db.Querier, id int64) (bool, error) {
	var active bool
	err := q.QueryRow(ctx, `SELECT active FROM expense_types WHERE id = $1`, id).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dividend: lookup expense type: %w", err)
	}
	return active, nil
}
