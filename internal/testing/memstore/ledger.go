package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/cashdesk/internal/ledger"
	"github.com/odyssey-erp/cashdesk/internal/money"
	"github.com/odyssey-erp/cashdesk/internal/platform/db"
	"github.com/odyssey-erp/cashdesk/internal/shared"
)

// Ledger is an in-memory ledger.Store.
type Ledger struct {
	mu       sync.Mutex
	txs      map[int64]ledger.Transaction
	branches map[int64]struct{}
	nextID   int64
}

var _ ledger.Store = (*Ledger)(nil)

// NewLedger returns an empty Ledger knowing the given branches.
func NewLedger(branchIDs ...int64) *Ledger {
	l := &Ledger{txs: make(map[int64]ledger.Transaction), branches: make(map[int64]struct{})}
	for _, id := range branchIDs {
		l.branches[id] = struct{}{}
	}
	return l
}

// Add stores tx, assigning an id when it has none.
func (l *Ledger) Add(tx ledger.Transaction) ledger.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tx.ID == 0 {
		l.nextID++
		tx.ID = l.nextID
	} else if tx.ID > l.nextID {
		l.nextID = tx.ID
	}
	l.txs[tx.ID] = tx
	l.branches[tx.BranchID] = struct{}{}
	return tx
}

// Revenue adds a revenue row split across the three buckets.
func (l *Ledger) Revenue(branchID int64, at time.Time, opex, dividend, marketing int64) ledger.Transaction {
	return l.Add(ledger.Transaction{
		BranchID:   branchID,
		Type:       ledger.TxRevenue,
		Amount:     money.New(opex + dividend + marketing),
		OccurredAt: at,
		Portions: map[ledger.Bucket]money.Amount{
			ledger.BucketOpEx:      money.New(opex),
			ledger.BucketDividend:  money.New(dividend),
			ledger.BucketMarketing: money.New(marketing),
		},
	})
}

// Expense adds an expense row tagged to one bucket.
func (l *Ledger) Expense(branchID int64, at time.Time, bucket ledger.Bucket, amount int64) ledger.Transaction {
	return l.Add(ledger.Transaction{
		BranchID:   branchID,
		Type:       ledger.TxExpense,
		Amount:     money.New(amount),
		OccurredAt: at,
		Portions:   map[ledger.Bucket]money.Amount{bucket: money.New(amount)},
	})
}

// Collection adds an undelivered cash collection row.
func (l *Ledger) Collection(branchID int64, at time.Time, amount int64) ledger.Transaction {
	return l.Add(ledger.Transaction{
		BranchID:   branchID,
		Type:       ledger.TxCollection,
		Amount:     money.New(amount),
		OccurredAt: at,
	})
}

// Get returns the stored transaction.
func (l *Ledger) Get(id int64) (ledger.Transaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.txs[id]
	return tx, ok
}

// ListTransactions mirrors the SQL ordering of the pg store.
func (l *Ledger) ListTransactions(_ context.Context, _ db.Querier, branchID int64, rng ledger.DateRange, f ledger.Filter) ([]ledger.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []ledger.Transaction
	for _, tx := range l.txs {
		if tx.BranchID == branchID && rng.Contains(tx.OccurredAt) && f.Matches(tx) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetTransactions returns the known rows among ids in id order.
func (l *Ledger) GetTransactions(ctx context.Context, q db.Querier, ids []int64) ([]ledger.Transaction, error) {
	return l.LockTransactions(ctx, q, ids)
}

// LockTransactions returns the known rows among ids in id order. The branch lock of the unit
// of work already serialises writers, so no row lock is modelled.
func (l *Ledger) LockTransactions(_ context.Context, _ db.Querier, ids []int64) ([]ledger.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []ledger.Transaction
	for _, id := range ids {
		if tx, ok := l.txs[id]; ok {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MarkDelivered flips every id or none.
func (l *Ledger) MarkDelivered(_ context.Context, _ db.Querier, ids []int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		tx, ok := l.txs[id]
		if !ok || tx.Type != ledger.TxCollection || tx.Delivered {
			return fmt.Errorf("%w: transaction %d is no longer undelivered", shared.ErrConflict, id)
		}
	}
	for _, id := range ids {
		tx := l.txs[id]
		tx.Delivered = true
		l.txs[id] = tx
	}
	return nil
}

// BranchIDs lists known branches in id order.
func (l *Ledger) BranchIDs(context.Context, db.Querier) ([]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]int64, 0, len(l.branches))
	for id := range l.branches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Snapshot implements Snapshotter.
func (l *Ledger) Snapshot(branchID int64) func() {
	l.mu.Lock()
	saved := make(map[int64]ledger.Transaction)
	for id, tx := range l.txs {
		if tx.BranchID == branchID {
			saved[id] = tx
		}
	}
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for id, tx := range l.txs {
			if tx.BranchID == branchID {
				delete(l.txs, id)
			}
		}
		for id, tx := range saved {
			l.txs[id] = tx
		}
	}
}
