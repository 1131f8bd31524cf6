package inkasso

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cashdesk/internal/money"
	"github.com/odyssey-erp/cashdesk/internal/platform/db"
	"github.com/odyssey-erp/cashdesk/internal/rbac"
	"github.com/odyssey-erp/cashdesk/internal/shared"
	"github.com/odyssey-erp/cashdesk/internal/testing/memstore"
)

const branch = int64(7)

var (
	operator = rbac.Actor{ID: 4, Role: rbac.RoleBranchOperator}
	base     = time.Date(2024, 8, 5, 9, 0, 0, 0, time.UTC)
)

type memoryRepo struct {
	mu        sync.Mutex
	rows      []Delivery
	items     map[int64]uuid.UUID
	lastLimit int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[int64]uuid.UUID)}
}

func (m *memoryRepo) Insert(_ context.Context, _ db.Querier, d Delivery) error {
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

func (m *memoryRepo) List(_ context.Context, _ db.Querier, branchID int64, limit int) ([]Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	var out []Delivery
	for _, d := range m.rows {
		if d.BranchID == branchID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeliveredDate.After(out[j].DeliveredDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRepo) Get(_ context.Context, _ db.Querier, branchID int64, id uuid.UUID) (Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.rows {
		if d.ID == id && d.BranchID == branchID {
			return d, nil
		}
	}
	return Delivery{}, fmt.Errorf("%w: inkasso delivery %s", shared.ErrNotFound, id)
}

func (m *memoryRepo) Snapshot(int64) func() {
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

func (m *memoryRepo) referencing(txID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range m.rows {
		for _, id := range d.TransactionIDs {
			if id == txID {
				n++
			}
		}
	}
	return n
}

type fixture struct {
	ledger *memstore.Ledger
	repo   *memoryRepo
	svc    *Service
}

func newFixture() *fixture {
	f := &fixture{ledger: memstore.NewLedger(branch, 8), repo: newMemoryRepo()}
	uow := memstore.NewUnitOfWork(branch, 8)
	trail := memstore.NewTrail()
	uow.Track(f.ledger, f.repo, trail)
	f.svc = NewService(uow, f.ledger, f.repo, trail, nil)
	f.svc.now = func() time.Time { return base.Add(24 * time.Hour) }
	return f
}

func TestListUndeliveredOldestFirst(t *testing.T) {
	f := newFixture()
	late := f.ledger.Collection(branch, base.Add(2*time.Hour), 500)
	early := f.ledger.Collection(branch, base, 300)
	delivered := f.ledger.Collection(branch, base.Add(time.Hour), 700)
	f.ledger.Revenue(branch, base, 100, 0, 0)
	f.ledger.Collection(8, base, 900)

	_, err := f.svc.Create(context.Background(), operator, CreateInput{BranchID: branch, TransactionIDs: []int64{delivered.ID}})
	require.NoError(t, err)

	list, err := f.svc.ListUndelivered(context.Background(), branch)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, early.ID, list[0].ID)
	require.Equal(t, late.ID, list[1].ID)
}

func TestCreateTotalsAndMarksDelivered(t *testing.T) {
	f := newFixture()
	a := f.ledger.Collection(branch, base, 10_000)
	b := f.ledger.Collection(branch, base, 25_000)
	c := f.ledger.Collection(branch, base, 5_000)

	d, err := f.svc.Create(context.Background(), operator, CreateInput{
		BranchID: branch, TransactionIDs: []int64{a.ID, b.ID, c.ID}, Notes: "August batch",
	})
	require.NoError(t, err)
	require.Equal(t, 3, d.TransactionCount)
	require.Equal(t, money.New(40_000), d.TotalAmount)
	require.Equal(t, base.Add(24*time.Hour), d.DeliveredDate)
	for _, id := range []int64{a.ID, b.ID, c.ID} {
		tx, _ := f.ledger.Get(id)
		require.True(t, tx.Delivered)
	}

	detail, err := f.svc.Get(context.Background(), branch, d.ID)
	require.NoError(t, err)
	require.Len(t, detail.Transactions, 3)

	_, err = f.svc.Get(context.Background(), 8, d.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateIsAllOrNothing(t *testing.T) {
	f := newFixture()
	fresh := f.ledger.Collection(branch, base, 100)
	done := f.ledger.Collection(branch, base, 200)
	revenue := f.ledger.Revenue(branch, base, 50, 0, 0)
	foreign := f.ledger.Collection(8, base, 300)

	_, err := f.svc.Create(context.Background(), operator, CreateInput{BranchID: branch, TransactionIDs: []int64{done.ID}})
	require.NoError(t, err)

	cases := []struct {
		name string
		ids  []int64
		kind error
	}{
		{"already delivered", []int64{fresh.ID, done.ID}, shared.ErrConflict},
		{"not a collection", []int64{fresh.ID, revenue.ID}, shared.ErrConflict},
		{"foreign branch", []int64{fresh.ID, foreign.ID}, shared.ErrNotFound},
		{"unknown id", []int64{fresh.ID, 9_999}, shared.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), operator, CreateInput{BranchID: branch, TransactionIDs: tc.ids})
			require.ErrorIs(t, err, tc.kind)
			tx, _ := f.ledger.Get(fresh.ID)
			require.False(t, tx.Delivered)
		})
	}
	list, err := f.svc.List(context.Background(), branch, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture()
	for name, ids := range map[string][]int64{
		"empty":     nil,
		"duplicate": {3, 4, 3},
		"negative":  {-1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), operator, CreateInput{BranchID: branch, TransactionIDs: ids})
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	_, err := f.svc.Create(context.Background(), rbac.Actor{}, CreateInput{BranchID: branch, TransactionIDs: []int64{1}})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestConcurrentDeliveriesNeverDoubleDeliver(t *testing.T) {
	f := newFixture()
	shared1 := f.ledger.Collection(branch, base, 1_000)
	a := f.ledger.Collection(branch, base, 10)
	b := f.ledger.Collection(branch, base, 20)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, other := range []int64{a.ID, b.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Create(context.Background(), operator, CreateInput{
				BranchID: branch, TransactionIDs: []int64{shared1.ID, other},
			})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, shared.ErrConflict)
		require.True(t, shared.Retryable(err))
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, f.repo.referencing(shared1.ID))
	tx, _ := f.ledger.Get(shared1.ID)
	require.True(t, tx.Delivered)
}

func TestReferencedTransactionFailsBatch(t *testing.T) {
	f := newFixture()
	tx := f.ledger.Collection(branch, base, 100)
	f.repo.items[tx.ID] = uuid.New()

	_, err := f.svc.Create(context.Background(), operator, CreateInput{BranchID: branch, TransactionIDs: []int64{tx.ID}})
	require.ErrorIs(t, err, shared.ErrConflict)
	stored, _ := f.ledger.Get(tx.ID)
	require.False(t, stored.Delivered)
	list, err := f.svc.List(context.Background(), branch, 10)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestListPageSize(t *testing.T) {
	f := newFixture()
	for limit, want := range map[int]int{-1: 50, 0: 50, 7: 7, 201: 200} {
		_, err := f.svc.List(context.Background(), branch, limit)
		require.NoError(t, err)
		require.Equal(t, want, f.repo.lastLimit, "limit %d", limit)
	}
}
