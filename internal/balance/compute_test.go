package balance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cashdesk/internal/ledger"
	"github.com/odyssey-erp/cashdesk/internal/money"
	"github.com/odyssey-erp/cashdesk/internal/platform/db"
	"github.com/odyssey-erp/cashdesk/internal/shared"
	"github.com/odyssey-erp/cashdesk/internal/testing/memstore"
)

var day = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func revenue(opex, dividend, marketing int64) ledger.Transaction {
	return ledger.Transaction{
		Type: ledger.TxRevenue,
		Portions: map[ledger.Bucket]money.Amount{
			ledger.BucketOpEx:      money.New(opex),
			ledger.BucketDividend:  money.New(dividend),
			ledger.BucketMarketing: money.New(marketing),
		},
	}
}

func TestComputeDerivesBuckets(t *testing.T) {
	snap := Snapshot{
		BranchID: 1,
		Transactions: []ledger.Transaction{
			revenue(600_000, 300_000, 100_000),
			revenue(400_000, 200_000, 0),
			{Type: ledger.TxExpense, Portions: map[ledger.Bucket]money.Amount{ledger.BucketOpEx: money.New(150_000)}},
			{Type: ledger.TxCollection, Amount: money.New(99_999)},
		},
		Commitments: []Commitment{
			{Bucket: ledger.BucketOpEx, Amount: money.New(50_000), State: CommitmentSpent},
			{Bucket: ledger.BucketDividend, Amount: money.New(120_000), State: CommitmentReserved},
			{Bucket: ledger.BucketMarketing, Amount: money.New(40_000), State: CommitmentSpent},
		},
	}
	bal := Compute(snap)

	require.Empty(t, bal.Warnings)
	require.Len(t, bal.Buckets, 3)
	require.Equal(t, BucketBalance{
		Bucket: ledger.BucketOpEx, Allocated: 1_000_000, Spent: 200_000, Available: 800_000,
	}, bal.Of(ledger.BucketOpEx))
	require.Equal(t, BucketBalance{
		Bucket: ledger.BucketDividend, Allocated: 500_000, Reserved: 120_000, Available: 380_000,
	}, bal.Of(ledger.BucketDividend))
	require.Equal(t, money.New(60_000), bal.Available(ledger.BucketMarketing))
}

func TestComputeClampsAndWarns(t *testing.T) {
	bal := Compute(Snapshot{
		Transactions: []ledger.Transaction{revenue(100, 0, 0)},
		Commitments:  []Commitment{{Bucket: ledger.BucketOpEx, Amount: money.New(250), State: CommitmentSpent}},
	})
	require.Equal(t, money.Zero, bal.Available(ledger.BucketOpEx))
	require.Len(t, bal.Warnings, 1)
	require.Equal(t, ledger.BucketOpEx, bal.Warnings[0].Bucket)
	require.Equal(t, money.New(-150), bal.Warnings[0].RawAvailable)
}

func TestRequireNamesBucketAndShortfall(t *testing.T) {
	bal := Compute(Snapshot{Transactions: []ledger.Transaction{revenue(0, 300, 0)}})
	require.NoError(t, bal.Require(ledger.BucketDividend, money.New(300)))

	err := bal.Require(ledger.BucketDividend, money.New(800))
	require.ErrorIs(t, err, shared.ErrInsufficientFunds)
	var insufficient *InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, ledger.BucketDividend, insufficient.Bucket)
	require.Equal(t, money.New(500), insufficient.Shortfall())
	require.Equal(t, int64(500), insufficient.ProblemExtensions()["shortfall"])
}

type stubSource []Commitment

func (s stubSource) Commitments(context.Context, db.Querier, int64, time.Time) ([]Commitment, error) {
	return s, nil
}

type countingRecorder struct{ hits map[ledger.Bucket]int }

func (c *countingRecorder) IntegrityWarning(_ int64, b ledger.Bucket) { c.hits[b]++ }

func TestCalculatorAppliesCutoffAndSources(t *testing.T) {
	store := memstore.NewLedger(1, 2)
	store.Revenue(1, day, 1_000, 500, 200)
	store.Revenue(1, day.Add(48*time.Hour), 9_000, 0, 0)
	store.Expense(1, day.Add(time.Hour), ledger.BucketMarketing, 300)
	store.Collection(1, day, 7_000)

	rec := &countingRecorder{hits: map[ledger.Bucket]int{}}
	calc := NewCalculator(memstore.NewUnitOfWork(1, 2), store, nil,
		WithSources(stubSource{{Bucket: ledger.BucketDividend, Amount: money.New(100), State: CommitmentReserved}}),
		WithIntegrityRecorder(rec),
		WithClock(func() time.Time { return day.Add(24 * time.Hour) }),
	)

	bal, err := calc.Compute(context.Background(), 1, time.Time{})
	require.NoError(t, err)
	require.Equal(t, day.Add(24*time.Hour), bal.AsOf)
	require.Equal(t, money.New(1_000), bal.Available(ledger.BucketOpEx))
	require.Equal(t, money.New(400), bal.Available(ledger.BucketDividend))
	require.Equal(t, money.Zero, bal.Available(ledger.BucketMarketing))
	require.Equal(t, 1, rec.hits[ledger.BucketMarketing])

	later, err := calc.Compute(context.Background(), 1, day.Add(72*time.Hour))
	require.NoError(t, err)
	require.Equal(t, money.New(10_000), later.Available(ledger.BucketOpEx))
}

func TestCalculatorUnknownBranch(t *testing.T) {
	calc := NewCalculator(memstore.NewUnitOfWork(1), memstore.NewLedger(1), nil)
	_, err := calc.Compute(context.Background(), 42, time.Time{})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCalculatorTransientStore(t *testing.T) {
	uow := memstore.NewUnitOfWork(1)
	uow.FailNext(shared.ErrTransientStore)
	calc := NewCalculator(uow, memstore.NewLedger(1), nil)
	_, err := calc.Compute(context.Background(), 1, time.Time{})
	require.ErrorIs(t, err, shared.ErrTransientStore)
	require.True(t, shared.Retryable(err))
}

func TestAllBranchesOrdersByBranch(t *testing.T) {
	store := memstore.NewLedger()
	for id := int64(5); id >= 1; id-- {
		store.Revenue(id, day, id*100, 0, 0)
	}
	calc := NewCalculator(memstore.NewUnitOfWork(1, 2, 3, 4, 5), store, nil, WithFanOut(2))

	all, err := calc.AllBranches(context.Background(), day.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, bal := range all {
		require.Equal(t, int64(i+1), bal.BranchID)
		require.Equal(t, money.New(int64(i+1)*100), bal.Available(ledger.BucketOpEx))
	}
}
