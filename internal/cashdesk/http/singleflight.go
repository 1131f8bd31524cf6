package cashdeskhttp

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/cashdesk/internal/balance"
	"github.com/odyssey-erp/cashdesk/internal/shared"
)

func currentKey(branchID int64) string {
	return fmt.Sprintf("%d|now", branchID)
}

// computeShared collapses concurrent identical balance queries into one store read.
// Current balances share a flight only until the next committed write on the branch.
func (h *Handler) computeShared(ctx context.Context, branchID int64, asOf time.Time) (balance.Balance, error) {
	key := fmt.Sprintf("%d|%d", branchID, asOf.UnixNano())
	if asOf.IsZero() {
		key = currentKey(branchID)
	}
	ch := h.flight.DoChan(key, func() (any, error) {
		return h.balances.Compute(context.WithoutCancel(ctx), branchID, asOf)
	})
	select {
	case <-ctx.Done():
		return balance.Balance{}, fmt.Errorf("%w: %v", shared.ErrTransientStore, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return balance.Balance{}, res.Err
		}
		return res.Val.(balance.Balance), nil
	}
}

// balanceChanged detaches an in-flight current balance of branchID so that reads issued
// after a committed write start a computation that observes it.
func (h *Handler) balanceChanged(branchID int64) {
	h.flight.Forget(currentKey(branchID))
}
