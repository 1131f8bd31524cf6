// Package balance derives per-branch bucket balances from transactions and workflow entities.
package balance

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/cashdesk/internal/ledger"
	"github.com/odyssey-erp/cashdesk/internal/money"
	"github.com/odyssey-erp/cashdesk/internal/shared"
)

// CommitmentState says whether a commitment is provisional or consumed.
type CommitmentState string

const (
	CommitmentReserved CommitmentState = "RESERVED"
	CommitmentSpent    CommitmentState = "SPENT"
)

// Commitment is the effect of one workflow entity on one bucket.
type Commitment struct {
	Bucket ledger.Bucket
	Amount money.Amount
	State  CommitmentState
	Source string
	RefID  string
}

// BucketBalance holds the derived figures of one bucket.
type BucketBalance struct {
	Bucket    ledger.Bucket `json:"bucket"`
	Allocated money.Amount  `json:"allocated"`
	Reserved  money.Amount  `json:"reserved"`
	Spent     money.Amount  `json:"spent"`
	Available money.Amount  `json:"available"`
}

// IntegrityWarning reports a bucket whose inputs implied a negative available amount.
type IntegrityWarning struct {
	Bucket       ledger.Bucket `json:"bucket"`
	RawAvailable money.Amount  `json:"raw_available"`
	Message      string        `json:"message"`
}

// Balance is the derived state of all buckets of one branch.
type Balance struct {
	BranchID int64              `json:"branch_id"`
	AsOf     time.Time          `json:"as_of"`
	Buckets  []BucketBalance    `json:"buckets"`
	Warnings []IntegrityWarning `json:"warnings,omitempty"`
}

// Of returns the figures of bucket b.
func (b Balance) Of(bucket ledger.Bucket) BucketBalance {
	for _, bb := range b.Buckets {
		if bb.Bucket == bucket {
			return bb
		}
	}
	return BucketBalance{Bucket: bucket}
}

// Available returns the available amount of bucket b.
func (b Balance) Available(bucket ledger.Bucket) money.Amount {
	return b.Of(bucket).Available
}

// Require fails with InsufficientFundsError when amount exceeds the bucket's available figure.
func (b Balance) Require(bucket ledger.Bucket, amount money.Amount) error {
	available := b.Available(bucket)
	if amount > available {
		return &InsufficientFundsError{Bucket: bucket, Requested: amount, Available: available}
	}
	return nil
}

// Snapshot gathers the raw inputs of the projection.
type Snapshot struct {
	BranchID     int64
	AsOf         time.Time
	Transactions []ledger.Transaction
	Commitments  []Commitment
}

// InsufficientFundsError names the bucket and the shortfall of a rejected operation.
type InsufficientFundsError struct {
	Bucket    ledger.Bucket
	Requested money.Amount
	Available money.Amount
}

// Shortfall is the missing amount.
func (e *InsufficientFundsError) Shortfall() money.Amount {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("%s: bucket %s requested %s, available %s, shortfall %s",
		shared.ErrInsufficientFunds, e.Bucket, e.Requested, e.Available, e.Shortfall())
}

// Is matches shared.ErrInsufficientFunds.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == shared.ErrInsufficientFunds
}

// ProblemExtensions exposes the bucket and shortfall to HTTP problem documents.
func (e *InsufficientFundsError) ProblemExtensions() map[string]any {
	return map[string]any{
		"bucket":    string(e.Bucket),
		"requested": e.Requested.Minor(),
		"available": e.Available.Minor(),
		"shortfall": e.Shortfall().Minor(),
	}
}
