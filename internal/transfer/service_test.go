package transfer

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cashdesk/internal/balance"
	"github.com/odyssey-erp/cashdesk/internal/ledger"
	"github.com/odyssey-erp/cashdesk/internal/money"
	"github.com/odyssey-erp/cashdesk/internal/platform/db"
	"github.com/odyssey-erp/cashdesk/internal/rbac"
	"github.com/odyssey-erp/cashdesk/internal/shared"
	"github.com/odyssey-erp/cashdesk/internal/testing/memstore"
)

const branch = int64(3)

var (
	manager  = rbac.Actor{ID: 1, Role: rbac.RoleGeneralManager}
	operator = rbac.Actor{ID: 2, Role: rbac.RoleBranchOperator}
	start    = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
)

type memoryRepo struct {
	mu        sync.Mutex
	rows      []Transfer
	lastLimit int
}

func (m *memoryRepo) Insert(_ context.Context, _ db.Querier, t Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, t)
	return nil
}

func (m *memoryRepo) List(_ context.Context, _ db.Querier, branchID int64, f ListFilter) ([]Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = f.Limit
	var out []Transfer
	for _, t := range m.rows {
		if t.BranchID == branchID && f.Range.Contains(t.CreatedAt) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memoryRepo) ListForBalance(_ context.Context, _ db.Querier, branchID int64, asOf time.Time) ([]Transfer, error) {
	return m.List(context.Background(), nil, branchID, ListFilter{Range: ledger.DateRange{To: asOf}})
}

func (m *memoryRepo) Snapshot(int64) func() {
	m.mu.Lock()
	n := len(m.rows)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.rows = m.rows[:n]
	}
}

type fixture struct {
	uow   *memstore.UnitOfWork
	repo  *memoryRepo
	calc  *balance.Calculator
	svc   *Service
	trail *memstore.Trail
	clock time.Time
}

func newFixture(t *testing.T, dividend, marketing int64) *fixture {
	t.Helper()
	store := memstore.NewLedger(branch)
	store.Revenue(branch, start.Add(-time.Hour), 0, dividend, marketing)
	repo := &memoryRepo{}
	f := &fixture{uow: memstore.NewUnitOfWork(branch), repo: repo, trail: memstore.NewTrail(), clock: start}
	f.uow.Track(store, repo, f.trail)
	now := func() time.Time { return f.clock }
	f.calc = balance.NewCalculator(f.uow, store, nil, balance.WithSources(NewSource(repo)), balance.WithClock(now))
	f.svc = NewService(f.uow, repo, f.calc, f.trail, nil)
	f.svc.now = now
	return f
}

func (f *fixture) balance(t *testing.T) balance.Balance {
	t.Helper()
	bal, err := f.calc.Compute(context.Background(), branch, time.Time{})
	require.NoError(t, err)
	require.Empty(t, bal.Warnings)
	return bal
}

func TestCreateDebitsBothBuckets(t *testing.T) {
	f := newFixture(t, 500_000, 200_000)

	tr, err := f.svc.Create(context.Background(), manager, CreateInput{
		BranchID: branch, DividendAmount: money.New(300_000), MarketingAmount: money.New(50_000), Notes: "weekly",
	})
	require.NoError(t, err)
	require.Equal(t, money.New(350_000), tr.Total())
	require.Equal(t, manager.ID, tr.TransferredBy)

	bal := f.balance(t)
	require.Equal(t, money.New(200_000), bal.Available(ledger.BucketDividend))
	require.Equal(t, money.New(150_000), bal.Available(ledger.BucketMarketing))
	require.Equal(t, money.New(300_000), bal.Of(ledger.BucketDividend).Spent)
	require.Len(t, f.trail.Entries(), 1)
}

func TestCreateCannotOverdraw(t *testing.T) {
	f := newFixture(t, 100_000, 100_000)
	before := f.balance(t)

	cases := []struct {
		name      string
		in        CreateInput
		bucket    ledger.Bucket
		shortfall money.Amount
	}{
		{"dividend", CreateInput{BranchID: branch, DividendAmount: money.New(100_001)}, ledger.BucketDividend, money.New(1)},
		{"marketing", CreateInput{BranchID: branch, DividendAmount: money.New(10), MarketingAmount: money.New(250_000)}, ledger.BucketMarketing, money.New(150_000)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), manager, tc.in)
			require.ErrorIs(t, err, shared.ErrInsufficientFunds)
			var insufficient *balance.InsufficientFundsError
			require.ErrorAs(t, err, &insufficient)
			require.Equal(t, tc.bucket, insufficient.Bucket)
			require.Equal(t, tc.shortfall, insufficient.Shortfall())
		})
	}
	require.Equal(t, before.Buckets, f.balance(t).Buckets)
	require.Empty(t, f.trail.Entries())
}

func TestCreateValidationAndRole(t *testing.T) {
	f := newFixture(t, 100, 100)

	_, err := f.svc.Create(context.Background(), operator, CreateInput{BranchID: branch, DividendAmount: money.New(10)})
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.svc.Create(context.Background(), manager, CreateInput{BranchID: branch})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Create(context.Background(), manager, CreateInput{BranchID: branch, DividendAmount: money.New(-5), MarketingAmount: money.New(10)})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Create(context.Background(), manager, CreateInput{BranchID: 99, MarketingAmount: money.New(10)})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConcurrentTransfersRespectAvailable(t *testing.T) {
	f := newFixture(t, 1_000, 0)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(context.Background(), manager, CreateInput{BranchID: branch, DividendAmount: money.New(300)})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, shared.ErrInsufficientFunds)
		}()
	}
	wg.Wait()
	require.Equal(t, 3, ok)
	require.Equal(t, money.New(100), f.balance(t).Available(ledger.BucketDividend))
}

func TestListByRange(t *testing.T) {
	f := newFixture(t, 1_000, 1_000)
	for i := 0; i < 3; i++ {
		f.clock = start.Add(time.Duration(i) * 24 * time.Hour)
		_, err := f.svc.Create(context.Background(), manager, CreateInput{BranchID: branch, MarketingAmount: money.New(int64(100 * (i + 1)))})
		require.NoError(t, err)
	}

	all, err := f.svc.List(context.Background(), branch, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, money.New(300), all[0].MarketingAmount)

	firstDay, err := f.svc.List(context.Background(), branch, ListFilter{Range: ledger.DateRange{To: start.Add(time.Hour)}})
	require.NoError(t, err)
	require.Len(t, firstDay, 1)
}

func TestListPageSize(t *testing.T) {
	f := newFixture(t, 0, 0)
	for limit, want := range map[int]int{0: 50, 20: 20, 500: 200} {
		_, err := f.svc.List(context.Background(), branch, ListFilter{Limit: limit})
		require.NoError(t, err)
		require.Equal(t, want, f.repo.lastLimit, "limit %d", limit)
	}
}
