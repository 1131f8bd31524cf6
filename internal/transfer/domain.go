// Package transfer records manager-authorised movements of dividend and marketing cash from a
// branch safe to the central safe. Transfers are completed facts and cannot be undone.
package transfer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/cashdesk/internal/balance"
	"github.com/odyssey-erp/cashdesk/internal/ledger"
	"github.com/odyssey-erp/cashdesk/internal/money"
	"github.com/odyssey-erp/cashdesk/internal/shared"
)

// Transfer is a recorded cash movement.
type Transfer struct {
	ID              uuid.UUID    `json:"id"`
	BranchID        int64        `json:"branch_id"`
	TransferredBy   int64        `json:"transferred_by"`
	DividendAmount  money.Amount `json:"dividend_amount"`
	MarketingAmount money.Amount `json:"marketing_amount"`
	Notes           string       `json:"notes,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Total is the sum of both components.
func (t Transfer) Total() money.Amount {
	return money.Sum(t.DividendAmount, t.MarketingAmount)
}

// Commitments returns the spent effects of the transfer visible at asOf.
func (t Transfer) Commitments(asOf time.Time) []balance.Commitment {
	if t.CreatedAt.After(asOf) {
		return nil
	}
	var out []balance.Commitment
	if t.DividendAmount.IsPositive() {
		out = append(out, balance.Commitment{
			Bucket: ledger.BucketDividend, Amount: t.DividendAmount, State: balance.CommitmentSpent,
			Source: "cash_transfer", RefID: t.ID.String(),
		})
	}
	if t.MarketingAmount.IsPositive() {
		out = append(out, balance.Commitment{
			Bucket: ledger.BucketMarketing, Amount: t.MarketingAmount, State: balance.CommitmentSpent,
			Source: "cash_transfer", RefID: t.ID.String(),
		})
	}
	return out
}

// CreateInput captures a transfer.
type CreateInput struct {
	BranchID        int64
	DividendAmount  money.Amount
	MarketingAmount money.Amount
	Notes           string
}

// Validate performs the store-free checks.
func (in CreateInput) Validate() error {
	switch {
	case in.BranchID <= 0:
		return fmt.Errorf("%w: branch required", shared.ErrValidation)
	case in.DividendAmount.IsNegative() || in.MarketingAmount.IsNegative():
		return fmt.Errorf("%w: transfer amounts must not be negative", shared.ErrValidation)
	case in.DividendAmount.IsZero() && in.MarketingAmount.IsZero():
		return fmt.Errorf("%w: transfer amounts must not both be zero", shared.ErrValidation)
	}
	return nil
}

// ListFilter narrows List.
type ListFilter struct {
	Range ledger.DateRange
	Limit int
}

// RecordedEvent is emitted after a transfer commits.
type RecordedEvent struct {
	TransferID      uuid.UUID    `json:"transfer_id"`
	BranchID        int64        `json:"branch_id"`
	TransferredBy   int64        `json:"transferred_by"`
	DividendAmount  money.Amount `json:"dividend_amount"`
	MarketingAmount money.Amount `json:"marketing_amount"`
	Total           money.Amount `json:"total"`
	At              time.Time    `json:"at"`
}
