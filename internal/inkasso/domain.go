// Package inkasso batches cash collection transactions into immutable deliveries to the tax
// authority. A transaction is delivered exactly once.
package inkasso

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/cashdesk/internal/ledger"
	"github.com/odyssey-erp/cashdesk/internal/money"
	"github.com/odyssey-erp/cashdesk/internal/shared"
)

// Delivery is a recorded batch.
type Delivery struct {
	ID               uuid.UUID    `json:"id"`
	BranchID         int64        `json:"branch_id"`
	DeliveredBy      int64        `json:"delivered_by"`
	DeliveredDate    time.Time    `json:"delivered_date"`
	Notes            string       `json:"notes,omitempty"`
	TransactionIDs   []int64      `json:"transaction_ids"`
	TransactionCount int          `json:"transaction_count"`
	TotalAmount      money.Amount `json:"total_amount"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Detail is a delivery with the transactions it references.
type Detail struct {
	Delivery
	Transactions []ledger.Transaction `json:"transactions"`
}

// CreateInput captures a delivery batch.
type CreateInput struct {
	BranchID       int64
	TransactionIDs []int64
	DeliveredDate  time.Time
	Notes          string
}

// Validate checks the id set without touching the store.
func (in CreateInput) Validate() error {
	if in.BranchID <= 0 {
		return fmt.Errorf("%w: branch required", shared.ErrValidation)
	}
	if len(in.TransactionIDs) == 0 {
		return fmt.Errorf("%w: at least one transaction required", shared.ErrValidation)
	}
	seen := make(map[int64]struct{}, len(in.TransactionIDs))
	for _, id := range in.TransactionIDs {
		if id <= 0 {
			return fmt.Errorf("%w: invalid transaction id %d", shared.ErrValidation, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate transaction id %d", shared.ErrValidation, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// totals derives count and sum of the batch.
func totals(txs []ledger.Transaction) (int, money.Amount) {
	amounts := make([]money.Amount, len(txs))
	for i, tx := range txs {
		amounts[i] = tx.Amount
	}
	return len(txs), money.Sum(amounts...)
}

// eligible checks a locked row against the batch branch. Rows of other branches are reported
// as missing; rows already delivered or of the wrong type as a conflict.
func eligible(tx ledger.Transaction, branchID int64) error {
	switch {
	case tx.BranchID != branchID:
		return fmt.Errorf("%w: transaction %d", shared.ErrNotFound, tx.ID)
	case tx.Type != ledger.TxCollection:
		return fmt.Errorf("%w: transaction %d is %s, not a collection", shared.ErrConflict, tx.ID, tx.Type)
	case tx.Delivered:
		return fmt.Errorf("%w: transaction %d is already delivered", shared.ErrConflict, tx.ID)
	}
	return nil
}

// DeliveredEvent is emitted after a delivery commits.
type DeliveredEvent struct {
	DeliveryID       uuid.UUID    `json:"delivery_id"`
	BranchID         int64        `json:"branch_id"`
	DeliveredBy      int64        `json:"delivered_by"`
	DeliveredDate    time.Time    `json:"delivered_date"`
	TransactionCount int          `json:"transaction_count"`
	TotalAmount      money.Amount `json:"total_amount"`
}
