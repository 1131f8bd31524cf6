package e2e

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/cashdesk/internal/dividend"
	"github.com/odyssey-erp/cashdesk/internal/inkasso"
	"github.com/odyssey-erp/cashdesk/internal/platform/db"
	"github.com/odyssey-erp/cashdesk/internal/rbac"
	"github.com/odyssey-erp/cashdesk/internal/shared"
	"github.com/odyssey-erp/cashdesk/internal/transfer"
)

type dividendRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]dividend.Request
}

func newDividendRepo() *dividendRepo {
	return &dividendRepo{rows: make(map[uuid.UUID]dividend.Request)}
}

func (m *dividendRepo) Insert(_ context.Context, _ db.Querier, r dividend.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.ID] = r
	return nil
}

func (m *dividendRepo) LoadForUpdate(ctx context.Context, q db.Querier, branchID int64, id uuid.UUID) (dividend.Request, error) {
	return m.Get(ctx, q, branchID, id)
}

func (m *dividendRepo) UpdateReview(_ context.Context, _ db.Querier, u dividend.ReviewUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[u.ID]
	if !ok || r.Status != dividend.StatusPending {
		return shared.ErrConflict
	}
	reviewer, at := u.ReviewedBy, u.At
	r.Status, r.ReviewedBy, r.ReviewNote, r.ReviewedAt, r.UpdatedAt = u.Status, &reviewer, u.Note, &at, at
	m.rows[u.ID] = r
	return nil
}

func (m *dividendRepo) Get(_ context.Context, _ db.Querier, branchID int64, id uuid.UUID) (dividend.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.BranchID != branchID {
		return dividend.Request{}, fmt.Errorf("%w: dividend request %s", shared.ErrNotFound, id)
	}
	return r, nil
}

func (m *dividendRepo) List(_ context.Context, _ db.Querier, branchID int64, f dividend.ListFilter) ([]dividend.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []dividend.Request
	for _, r := range m.rows {
		if r.BranchID == branchID && (f.Status == "" || r.Status == f.Status) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *dividendRepo) ListForBalance(_ context.Context, _ db.Querier, branchID int64, asOf time.Time) ([]dividend.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []dividend.Request
	for _, r := range m.rows {
		if r.BranchID == branchID && !r.CreatedAt.After(asOf) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *dividendRepo) Snapshot(int64) func() {
	m.mu.Lock()
	saved := make(map[uuid.UUID]dividend.Request, len(m.rows))
	for id, r := range m.rows {
		saved[id] = r
	}
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.rows = saved
	}
}

type transferRepo struct {
	mu   sync.Mutex
	rows []transfer.Transfer
}

func (m *transferRepo) Insert(_ context.Context, _ db.Querier, t transfer.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, t)
	return nil
}

func (m *transferRepo) List(_ context.Context, _ db.Querier, branchID int64, f transfer.ListFilter) ([]transfer.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []transfer.Transfer
	for _, t := range m.rows {
		if t.BranchID == branchID && f.Range.Contains(t.CreatedAt) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *transferRepo) ListForBalance(ctx context.Context, q db.Querier, branchID int64, asOf time.Time) ([]transfer.Transfer, error) {
	out, err := m.List(ctx, q, branchID, transfer.ListFilter{})
	if err != nil {
		return nil, err
	}
	kept := out[:0]
	for _, t := range out {
		if !t.CreatedAt.After(asOf) {
			kept = append(kept, t)
		}
	}
	return kept, nil
}

func (m *transferRepo) Snapshot(int64) func() {
	m.mu.Lock()
	n := len(m.rows)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.rows = m.rows[:n]
	}
}

type deliveryRepo struct {
	mu    sync.Mutex
	rows  []inkasso.Delivery
	items map[int64]uuid.UUID
}

func newDeliveryRepo() *deliveryRepo {
	return &deliveryRepo{items: make(map[int64]uuid.UUID)}
}

func (m *deliveryRepo) Insert(_ context.Context, _ db.Querier, d inkasso.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range d.TransactionIDs {
		if _, taken := m.items[id]; taken {
			return fmt.Errorf("%w: transaction %d already referenced", shared.ErrConflict, id)
		}
	}
	for _, id := range d.TransactionIDs {
		m.items[id] = d.ID
	}
	m.rows = append(m.rows, d)
	return nil
}

func (m *deliveryRepo) List(_ context.Context, _ db.Querier, branchID int64, limit int) ([]inkasso.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []inkasso.Delivery
	for _, d := range m.rows {
		if d.BranchID == branchID {
			out = append(out, d)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *deliveryRepo) Get(_ context.Context, _ db.Querier, branchID int64, id uuid.UUID) (inkasso.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.rows {
		if d.ID == id && d.BranchID == branchID {
			return d, nil
		}
	}
	return inkasso.Delivery{}, fmt.Errorf("%w: inkasso delivery %s", shared.ErrNotFound, id)
}

func (m *deliveryRepo) Snapshot(int64) func() {
	m.mu.Lock()
	n := len(m.rows)
	saved := make(map[int64]uuid.UUID, len(m.items))
	for k, v := range m.items {
		saved[k] = v
	}
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.rows = m.rows[:n]
		m.items = saved
	}
}

type activeExpenseTypes map[int64]bool

func (e activeExpenseTypes) IsActive(_ context.Context, _ db.Querier, id int64) (bool, error) {
	return e[id], nil
}

type roleTable map[int64]rbac.Role

func (r roleTable) RoleOf(_ context.Context, userID int64) (rbac.Role, error) {
	role, ok := r[userID]
	if !ok {
		return "", shared.ErrNotFound
	}
	return role, nil
}
