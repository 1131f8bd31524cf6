// Package ledger is the read view over the branch transaction store.
package ledger

import (
	"time"

	"github.com/odyssey-erp/cashdesk/internal/money"
)

// Bucket names one of the fixed allocation pools tracked per branch.
type Bucket string

const (
	BucketOpEx      Bucket = "OPEX"
	BucketDividend  Bucket = "DIVIDEND"
	BucketMarketing Bucket = "MARKETING"
)

// Buckets lists every bucket in display order.
func Buckets() []Bucket {
	return []Bucket{BucketOpEx, BucketDividend, BucketMarketing}
}

// IsValid checks if the bucket is one of the fixed pools.
func (b Bucket) IsValid() bool {
	switch b {
	case BucketOpEx, BucketDividend, BucketMarketing:
		return true
	default:
		return false
	}
}

// TxType classifies transactions in the external store.
type TxType string

const (
	TxRevenue    TxType = "REVENUE"
	TxExpense    TxType = "EXPENSE"
	TxCollection TxType = "COLLECTION" // cash collected for inkasso delivery
)

// Transaction is a row of the external transaction store.
type Transaction struct {
	ID          int64
	BranchID    int64
	Type        TxType
	Amount      money.Amount
	OccurredAt  time.Time
	Description string
	// Portions holds the bucket split: allocated amounts for revenue, spent amounts for
	// directly tagged expenses. Collection rows carry none.
	Portions  map[Bucket]money.Amount
	Delivered bool
}

// Portion returns the amount tagged to bucket b.
func (t Transaction) Portion(b Bucket) money.Amount {
	if t.Portions == nil {
		return money.Zero
	}
	return t.Portions[b]
}

// DateRange bounds a transaction query. A zero From is open; To is an inclusive cutoff and a
// zero To is open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether at falls inside the range.
func (r DateRange) Contains(at time.Time) bool {
	if !r.From.IsZero() && at.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && at.After(r.To) {
		return false
	}
	return true
}

// Filter narrows a transaction query.
type Filter struct {
	Types     []TxType
	Delivered *bool
}

// Matches reports whether t passes the filter.
func (f Filter) Matches(t Transaction) bool {
	if len(f.Types) > 0 {
		found := false
		for _, typ := range f.Types {
			if t.Type == typ {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Delivered != nil && t.Delivered != *f.Delivered {
		return false
	}
	return true
}
