// Package dividend implements the dividend spend request workflow: expenses that exceed the
// operating expense bucket are partly funded from the dividend bucket after managerial review.
package dividend

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/cashdesk/internal/balance"
	"github.com/odyssey-erp/cashdesk/internal/ledger"
	"github.com/odyssey-erp/cashdesk/internal/money"
	"github.com/odyssey-erp/cashdesk/internal/shared"
)

// Status enumerates request lifecycle states.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Action is a review decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// Result returns the status the action moves a pending request to.
func (a Action) Result() (Status, bool) {
	switch a {
	case ActionApprove:
		return StatusApproved, true
	case ActionReject:
		return StatusRejected, true
	default:
		return "", false
	}
}

// Request is a dividend spend request.
type Request struct {
	ID              uuid.UUID    `json:"id"`
	BranchID        int64        `json:"branch_id"`
	RequestedBy     int64        `json:"requested_by"`
	Subject         string       `json:"subject"`
	Amount          money.Amount `json:"amount"`
	ExpenseTypeID   int64        `json:"expense_type_id"`
	Reason          string       `json:"reason"`
	OpexPortion     money.Amount `json:"opex_portion"`
	DividendPortion money.Amount `json:"dividend_portion"`
	Status          Status       `json:"status"`
	ReviewedBy      *int64       `json:"reviewed_by,omitempty"`
	ReviewNote      string       `json:"review_note,omitempty"`
	ReviewedAt      *time.Time   `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Split funds amount from OpEx first and the remainder from the dividend bucket.
func Split(opexAvailable, amount money.Amount) (opex, dividend money.Amount) {
	opex = money.Min(opexAvailable, amount)
	if opex.IsNegative() {
		opex = money.Zero
	}
	return opex, amount.Sub(opex)
}

// Commitments returns the bucket effects of the request as they stood at asOf.
func (r Request) Commitments(asOf time.Time) []balance.Commitment {
	if r.CreatedAt.After(asOf) {
		return nil
	}
	ref := r.ID.String()
	var out []balance.Commitment
	if r.OpexPortion.IsPositive() {
		out = append(out, balance.Commitment{
			Bucket: ledger.BucketOpEx, Amount: r.OpexPortion, State: balance.CommitmentSpent,
			Source: "dividend_request", RefID: ref,
		})
	}
	if !r.DividendPortion.IsPositive() {
		return out
	}
	status := r.Status
	if r.ReviewedAt != nil && r.ReviewedAt.After(asOf) {
		status = StatusPending
	}
	switch status {
	case StatusPending:
		out = append(out, balance.Commitment{
			Bucket: ledger.BucketDividend, Amount: r.DividendPortion, State: balance.CommitmentReserved,
			Source: "dividend_request", RefID: ref,
		})
	case StatusApproved:
		out = append(out, balance.Commitment{
			Bucket: ledger.BucketDividend, Amount: r.DividendPortion, State: balance.CommitmentSpent,
			Source: "dividend_request", RefID: ref,
		})
	}
	return out
}

// CreateInput captures a new request.
type CreateInput struct {
	BranchID      int64
	Subject       string
	Amount        money.Amount
	ExpenseTypeID int64
	Reason        string
}

// Validate performs the store-free checks.
func (in CreateInput) Validate() error {
	switch {
	case in.BranchID <= 0:
		return fmt.Errorf("%w: branch required", shared.ErrValidation)
	case strings.TrimSpace(in.Subject) == "":
		return fmt.Errorf("%w: subject required", shared.ErrValidation)
	case !in.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", shared.ErrValidation)
	case in.ExpenseTypeID <= 0:
		return fmt.Errorf("%w: expense type required", shared.ErrValidation)
	case strings.TrimSpace(in.Reason) == "":
		return fmt.Errorf("%w: reason required", shared.ErrValidation)
	}
	return nil
}

// ReviewInput captures a review decision.
type ReviewInput struct {
	BranchID  int64
	RequestID uuid.UUID
	Action    Action
	Note      string
}

// Validate performs the store-free checks.
func (in ReviewInput) Validate() error {
	if in.BranchID <= 0 {
		return fmt.Errorf("%w: branch required", shared.ErrValidation)
	}
	if in.RequestID == uuid.Nil {
		return fmt.Errorf("%w: request id required", shared.ErrValidation)
	}
	if _, ok := in.Action.Result(); !ok {
		return fmt.Errorf("%w: unknown review action %q", shared.ErrValidation, in.Action)
	}
	return nil
}

// ListFilter narrows List.
type ListFilter struct {
	Status Status
	Limit  int
}

// ReviewUpdate is the persisted outcome of a review.
type ReviewUpdate struct {
	ID         uuid.UUID
	Status     Status
	ReviewedBy int64
	Note       string
	At         time.Time
}

// Detail is a request together with its approval history.
type Detail struct {
	Request
	History []HistoryEntry `json:"history"`
}

// HistoryEntry is one approval trail row.
type HistoryEntry struct {
	ActorID int64     `json:"actor_id"`
	Action  string    `json:"action"`
	Note    string    `json:"note,omitempty"`
	At      time.Time `json:"at"`
}

// RequestedEvent is emitted after a request commits.
type RequestedEvent struct {
	RequestID       uuid.UUID    `json:"request_id"`
	BranchID        int64        `json:"branch_id"`
	RequestedBy     int64        `json:"requested_by"`
	Subject         string       `json:"subject"`
	Amount          money.Amount `json:"amount"`
	OpexPortion     money.Amount `json:"opex_portion"`
	DividendPortion money.Amount `json:"dividend_portion"`
	At              time.Time    `json:"at"`
}

// ReviewedEvent is emitted after a review commits.
type ReviewedEvent struct {
	RequestID       uuid.UUID    `json:"request_id"`
	BranchID        int64        `json:"branch_id"`
	RequestedBy     int64        `json:"requested_by"`
	ReviewedBy      int64        `json:"reviewed_by"`
	Status          Status       `json:"status"`
	DividendPortion money.Amount `json:"dividend_portion"`
	Note            string       `json:"note,omitempty"`
	At              time.Time    `json:"at"`
}
