package inkasso

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/cashdesk/internal/money"
	"github.com/odyssey-erp/cashdesk/internal/platform/db"
	"github.com/odyssey-erp/cashdesk/internal/shared"
)

// Repository persists deliveries.
type Repository interface {
	Insert(ctx context.Context, q db.Querier, d Delivery) error
	List(ctx context.Context, q db.Querier, branchID int64, limit int) ([]Delivery, error)
	Get(ctx context.Context, q db.Querier, branchID int64, id uuid.UUID) (Delivery, error)
}

// PGRepository implements Repository on inkasso_deliveries and inkasso_delivery_items. The
// items table carries a unique transaction_id so a second reference is rejected by the store.
type PGRepository struct{}

// NewPGRepository constructs the repository.
func NewPGRepository() *PGRepository {
	return &PGRepository{}
}

// Insert stores the delivery header and one item per transaction.
func (PGRepository) Insert(ctx context.Context, q db.Querier, d Delivery) error {
	_, err := q.Exec(ctx, `INSERT INTO inkasso_deliveries
(id, branch_id, delivered_by, delivered_date, notes, transaction_count, total_amount, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.BranchID, d.DeliveredBy, d.DeliveredDate, d.Notes, d.TransactionCount, d.TotalAmount.Minor(), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("inkasso: insert delivery: %w", err)
	}
	_, err = q.Exec(ctx, `INSERT INTO inkasso_delivery_items (delivery_id, transaction_id)
SELECT $1, unnest($2::bigint[])`, d.ID, d.TransactionIDs)
	if err != nil {
		return fmt.Errorf("inkasso: insert delivery items: %w", err)
	}
	return nil
}

const deliverySelect = `SELECT d.id, d.branch_id, d.delivered_by, d.delivered_date, d.notes,
d.transaction_count, d.total_amount, d.created_at,
COALESCE(ARRAY(SELECT i.transaction_id FROM inkasso_delivery_items i WHERE i.delivery_id = d.id ORDER BY i.transaction_id), '{}')
FROM inkasso_deliveries d`

// List returns branch deliveries newest first.
func (PGRepository) List(ctx context.Context, q db.Querier, branchID int64, limit int) ([]Delivery, error) {
	rows, err := q.Query(ctx, deliverySelect+` WHERE d.branch_id = $1
ORDER BY d.delivered_date DESC, d.created_at DESC LIMIT $2`, branchID, limit)
	if err != nil {
		return nil, fmt.Errorf("inkasso: list deliveries: %w", err)
	}
	defer rows.Close()
	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("inkasso: scan delivery: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inkasso: iterate deliveries: %w", err)
	}
	return out, nil
}

// Get loads one delivery of the branch.
func (PGRepository) Get(ctx context.Context, q db.Querier, branchID int64, id uuid.UUID) (Delivery, error) {
	d, err := scanDelivery(q.QueryRow(ctx, deliverySelect+` WHERE d.id = $1 AND d.branch_id = $2`, id, branchID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, fmt.Errorf("%w: inkasso delivery %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return Delivery{}, fmt.Errorf("inkasso: get delivery: %w", err)
	}
	return d, nil
}

func scanDelivery(row pgx.Row) (Delivery, error) {
	var (
		d     Delivery
		notes *string
		total int64
	)
	if err := row.Scan(&d.ID, &d.BranchID, &d.DeliveredBy, &d.DeliveredDate, &notes,
		&d.TransactionCount, &total, &d.CreatedAt, &d.TransactionIDs); err != nil {
		return Delivery{}, err
	}
	d.TotalAmount = money.New(total)
	if notes != nil {
		d.Notes = *notes
	}
	return d, nil
}
