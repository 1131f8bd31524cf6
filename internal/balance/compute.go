package balance

import (
	"fmt"

	"github.com/odyssey-erp/cashdesk/internal/ledger"
	"github.com/odyssey-erp/cashdesk/internal/money"
)

// Compute projects a snapshot into bucket balances. It has no side effects: the caller is
// responsible for reporting the returned warnings.
func Compute(s Snapshot) Balance {
	allocated := make(map[ledger.Bucket]money.Amount, 3)
	reserved := make(map[ledger.Bucket]money.Amount, 3)
	spent := make(map[ledger.Bucket]money.Amount, 3)

	for _, tx := range s.Transactions {
		switch tx.Type {
		case ledger.TxRevenue:
			for bucket, portion := range tx.Portions {
				allocated[bucket] = allocated[bucket].Add(portion)
			}
		case ledger.TxExpense:
			for bucket, portion := range tx.Portions {
				spent[bucket] = spent[bucket].Add(portion)
			}
		}
	}

	for _, c := range s.Commitments {
		switch c.State {
		case CommitmentReserved:
			reserved[c.Bucket] = reserved[c.Bucket].Add(c.Amount)
		case CommitmentSpent:
			spent[c.Bucket] = spent[c.Bucket].Add(c.Amount)
		}
	}

	out := Balance{BranchID: s.BranchID, AsOf: s.AsOf}
	for _, bucket := range ledger.Buckets() {
		bb := BucketBalance{
			Bucket:    bucket,
			Allocated: allocated[bucket],
			Reserved:  reserved[bucket],
			Spent:     spent[bucket],
		}
		raw := bb.Allocated.Sub(bb.Reserved).Sub(bb.Spent)
		if raw.IsNegative() {
			out.Warnings = append(out.Warnings, IntegrityWarning{
				Bucket:       bucket,
				RawAvailable: raw,
				Message:      fmt.Sprintf("bucket %s inputs imply available %s; clamped to 0", bucket, raw),
			})
			raw = money.Zero
		}
		bb.Available = raw
		out.Buckets = append(out.Buckets, bb)
	}
	return out
}
