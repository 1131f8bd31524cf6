package transfer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/cashdesk/internal/money"
	"github.com/odyssey-erp/cashdesk/internal/platform/db"
)

// Repository persists transfers.
type Repository interface {
	Insert(ctx context.Context, q db.Querier, t Transfer) error
	List(ctx context.Context, q db.Querier, branchID int64, f ListFilter) ([]Transfer, error)
	ListForBalance(ctx context.Context, q db.Querier, branchID int64, asOf time.Time) ([]Transfer, error)
}

// PGRepository implements Repository on cash_transfers.
type PGRepository struct{}

// NewPGRepository constructs the repository.
func NewPGRepository() *PGRepository {
	return &PGRepository{}
}

const transferColumns = `id, branch_id, transferred_by, dividend_amount, marketing_amount, notes, created_at`

// Insert stores a transfer.
func (PGRepository) Insert(ctx context.Context, q db.Querier, t Transfer) error {
	_, err := q.Exec(ctx, `INSERT INTO cash_transfers (`+transferColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.BranchID, t.TransferredBy, t.DividendAmount.Minor(), t.MarketingAmount.Minor(), t.Notes, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("transfer: insert: %w", err)
	}
	return nil
}

// List returns branch transfers newest first.
func (PGRepository) List(ctx context.Context, q db.Querier, branchID int64, f ListFilter) ([]Transfer, error) {
	var (
		where = []string{"branch_id = $1"}
		args  = []any{branchID}
	)
	if !f.Range.From.IsZero() {
		args = append(args, f.Range.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !f.Range.To.IsZero() {
		args = append(args, f.Range.To)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	args = append(args, f.Limit)
	rows, err := q.Query(ctx, `SELECT `+transferColumns+` FROM cash_transfers WHERE `+
		strings.Join(where, " AND ")+fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("transfer: list: %w", err)
	}
	return scanTransfers(rows)
}

// ListForBalance returns every transfer created up to asOf.
func (PGRepository) ListForBalance(ctx context.Context, q db.Querier, branchID int64, asOf time.Time) ([]Transfer, error) {
	rows, err := q.Query(ctx, `SELECT `+transferColumns+` FROM cash_transfers
WHERE branch_id = $1 AND created_at <= $2 ORDER BY created_at, id`, branchID, asOf)
	if err != nil {
		return nil, fmt.Errorf("transfer: list for balance: %w", err)
	}
	return scanTransfers(rows)
}

func scanTransfers(rows pgx.Rows) ([]Transfer, error) {
	defer rows.Close()
	var out []Transfer
	for rows.Next() {
		var (
			t                   Transfer
			dividend, marketing int64
			notes               *string
		)
		if err := rows.Scan(&t.ID, &t.BranchID, &t.TransferredBy, &dividend, &marketing, &notes, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("transfer: scan: %w", err)
		}
		t.DividendAmount = money.New(dividend)
		t.MarketingAmount = money.New(marketing)
		if notes != nil {
			t.Notes = *notes
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transfer: iterate: %w", err)
	}
	return out, nil
}
