package memstore

import (
	"context"
	"sync"

	"github.com/odyssey-erp/cashdesk/internal/audit"
	"github.com/odyssey-erp/cashdesk/internal/platform/db"
)

// Trail is an in-memory audit.Trail.
type Trail struct {
	mu        sync.Mutex
	entries   []audit.Entry
	approvals []audit.Approval
}

var _ audit.Trail = (*Trail)(nil)

// NewTrail returns an empty Trail.
func NewTrail() *Trail {
	return &Trail{}
}

// Record stores e.
func (t *Trail) Record(_ context.Context, _ db.Querier, e audit.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, e)
	return nil
}

// RecordApproval stores a.
func (t *Trail) RecordApproval(_ context.Context, _ db.Querier, a audit.Approval) error {
	if err := a.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	a.ID = int64(len(t.approvals) + 1)
	t.approvals = append(t.approvals, a)
	return nil
}

// Approvals lists approvals of module/ref in insertion order.
func (t *Trail) Approvals(_ context.Context, _ db.Querier, module, refID string) ([]audit.Approval, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []audit.Approval
	for _, a := range t.approvals {
		if a.Module == module && a.RefID == refID {
			out = append(out, a)
		}
	}
	return out, nil
}

// Entries returns a copy of the recorded entries.
func (t *Trail) Entries() []audit.Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]audit.Entry(nil), t.entries...)
}

// Snapshot implements Snapshotter. Entries of other branches written meanwhile survive.
func (t *Trail) Snapshot(branchID int64) func() {
	t.mu.Lock()
	entries, approvals := len(t.entries), len(t.approvals)
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		kept := t.entries[:entries:entries]
		for _, e := range t.entries[entries:] {
			if e.BranchID != branchID {
				kept = append(kept, e)
			}
		}
		t.entries = kept
		if len(t.approvals) > approvals {
			t.approvals = t.approvals[:approvals]
		}
	}
}
