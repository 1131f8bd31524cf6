package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/cashdesk/internal/money"
	"github.com/odyssey-erp/cashdesk/internal/platform/db"
	"github.com/odyssey-erp/cashdesk/internal/shared"
)

// Store is the read view over the external transaction store plus the delivered flag flip.
type Store interface {
	ListTransactions(ctx context.Context, q db.Querier, branchID int64, r DateRange, f Filter) ([]Transaction, error)
	GetTransactions(ctx context.Context, q db.Querier, ids []int64) ([]Transaction, error)
	LockTransactions(ctx context.Context, q db.Querier, ids []int64) ([]Transaction, error)
	MarkDelivered(ctx context.Context, q db.Querier, ids []int64) error
	BranchIDs(ctx context.Context, q db.Querier) ([]int64, error)
}

// Repository implements Store on the cash_transactions table.
type Repository struct{}

// NewRepository constructs a Repository.
func NewRepository() *Repository {
	return &Repository{}
}

const transactionColumns = `id, branch_id, type, amount, occurred_at, description,
opex_portion, dividend_portion, marketing_portion, delivered`

// ListTransactions returns branch transactions ordered by occurred_at ascending.
func (r *Repository) ListTransactions(ctx context.Context, q db.Querier, branchID int64, rng DateRange, f Filter) ([]Transaction, error) {
	var (
		where = []string{"branch_id = $1"}
		args  = []any{branchID}
	)
	if !rng.From.IsZero() {
		args = append(args, rng.From)
		where = append(where, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if !rng.To.IsZero() {
		args = append(args, rng.To)
		where = append(where, fmt.Sprintf("occurred_at <= $%d", len(args)))
	}
	if len(f.Types) > 0 {
		types := make([]string, 0, len(f.Types))
		for _, t := range f.Types {
			types = append(types, string(t))
		}
		args = append(args, types)
		where = append(where, fmt.Sprintf("type = ANY($%d)", len(args)))
	}
	if f.Delivered != nil {
		args = append(args, *f.Delivered)
		where = append(where, fmt.Sprintf("delivered = $%d", len(args)))
	}
	sql := `SELECT ` + transactionColumns + ` FROM cash_transactions WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY occurred_at ASC, id ASC`

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list transactions: %w", err)
	}
	return scanTransactions(rows)
}

// GetTransactions loads the named rows in id order without locking them.
func (r *Repository) GetTransactions(ctx context.Context, q db.Querier, ids []int64) ([]Transaction, error) {
	rows, err := q.Query(ctx, `SELECT `+transactionColumns+` FROM cash_transactions
WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("ledger: get transactions: %w", err)
	}
	return scanTransactions(rows)
}

// LockTransactions loads the named rows with FOR UPDATE, in id order to keep lock
// acquisition deterministic across writers.
func (r *Repository) LockTransactions(ctx context.Context, q db.Querier, ids []int64) ([]Transaction, error) {
	rows, err := q.Query(ctx, `SELECT `+transactionColumns+` FROM cash_transactions
WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("ledger: lock transactions: %w", err)
	}
	return scanTransactions(rows)
}

// MarkDelivered flips the delivered flag. Any row already delivered fails the whole call.
func (r *Repository) MarkDelivered(ctx context.Context, q db.Querier, ids []int64) error {
	tag, err := q.Exec(ctx, `UPDATE cash_transactions SET delivered = TRUE
WHERE id = ANY($1) AND type = $2 AND delivered = FALSE`, ids, string(TxCollection))
	if err != nil {
		return fmt.Errorf("ledger: mark delivered: %w", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("%w: %d of %d transactions were no longer undelivered", shared.ErrConflict, int64(len(ids))-tag.RowsAffected(), len(ids))
	}
	return nil
}

// BranchIDs lists every known branch.
func (r *Repository) BranchIDs(ctx context.Context, q db.Querier) ([]int64, error) {
	rows, err := q.Query(ctx, `SELECT id FROM branches ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ledger: list branches: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("ledger: scan branches: %w", err)
	}
	return ids, nil
}

func scanTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var (
			t                   Transaction
			typ                 string
			amount              int64
			opex, dividend, mkt int64
			description         *string
		)
		if err := rows.Scan(&t.ID, &t.BranchID, &typ, &amount, &t.OccurredAt, &description,
			&opex, &dividend, &mkt, &t.Delivered); err != nil {
			return nil, fmt.Errorf("ledger: scan transaction: %w", err)
		}
		t.Type = TxType(typ)
		t.Amount = money.New(amount)
		if description != nil {
			t.Description = *description
		}
		t.Portions = map[Bucket]money.Amount{
			BucketOpEx:      money.New(opex),
			BucketDividend:  money.New(dividend),
			BucketMarketing: money.New(mkt),
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate transactions: %w", err)
	}
	return out, nil
}
