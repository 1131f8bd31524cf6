package balance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/cashdesk/internal/ledger"
	"github.com/odyssey-erp/cashdesk/internal/platform/db"
)

// CommitmentSource contributes workflow commitments (dividend requests, transfers) to a snapshot.
type CommitmentSource interface {
	Commitments(ctx context.Context, q db.Querier, branchID int64, asOf time.Time) ([]Commitment, error)
}

// IntegrityRecorder receives clamped bucket observations.
type IntegrityRecorder interface {
	IntegrityWarning(branchID int64, bucket ledger.Bucket)
}

// Calculator loads snapshots and projects them with Compute.
type Calculator struct {
	uow       db.UnitOfWork
	txs       ledger.Store
	sources   []CommitmentSource
	logger    *slog.Logger
	recorder  IntegrityRecorder
	now       func() time.Time
	fanOutCap int
}

// Option customises a Calculator.
type Option func(*Calculator)

// WithClock overrides the clock used to default the as-of cutoff.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIntegrityRecorder forwards integrity warnings to r.
func WithIntegrityRecorder(r IntegrityRecorder) Option {
	return func(c *Calculator) { c.recorder = r }
}

// WithSources registers commitment sources.
func WithSources(sources ...CommitmentSource) Option {
	return func(c *Calculator) { c.sources = append(c.sources, sources...) }
}

// WithFanOut caps how many branches AllBranches computes at once.
func WithFanOut(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.fanOutCap = n
		}
	}
}

// NewCalculator constructs a Calculator.
func NewCalculator(uow db.UnitOfWork, txs ledger.Store, logger *slog.Logger, opts ...Option) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Calculator{
		uow:       uow,
		txs:       txs,
		logger:    logger,
		now:       time.Now,
		fanOutCap: 8,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now exposes the calculator clock so workflows stamp entities consistently.
func (c *Calculator) Now() time.Time {
	return c.now()
}

// openEnded is the commitment cutoff of a current balance.
var openEnded = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// Compute returns the balance of branchID as of asOf. A zero asOf asks for the current
// balance: transactions up to now and every committed workflow entity.
func (c *Calculator) Compute(ctx context.Context, branchID int64, asOf time.Time) (Balance, error) {
	var out Balance
	err := c.uow.Read(ctx, branchID, func(ctx context.Context, q db.Querier) error {
		var err error
		out, err = c.Within(ctx, q, branchID, asOf)
		return err
	})
	if err != nil {
		return Balance{}, err
	}
	return out, nil
}

// Within computes the balance using q. Writers call it with a zero asOf inside their branch
// unit of work so the figures they check are the ones they commit against.
func (c *Calculator) Within(ctx context.Context, q db.Querier, branchID int64, asOf time.Time) (Balance, error) {
	snap, err := c.Snapshot(ctx, q, branchID, asOf)
	if err != nil {
		return Balance{}, err
	}
	bal := Compute(snap)
	c.report(bal)
	return bal, nil
}

// Snapshot gathers the transactions and commitments visible at asOf.
func (c *Calculator) Snapshot(ctx context.Context, q db.Querier, branchID int64, asOf time.Time) (Snapshot, error) {
	commitCutoff := asOf
	if asOf.IsZero() {
		asOf = c.now()
		commitCutoff = openEnded
	}
	txs, err := c.txs.ListTransactions(ctx, q, branchID, ledger.DateRange{To: asOf}, ledger.Filter{
		Types: []ledger.TxType{ledger.TxRevenue, ledger.TxExpense},
	})
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{BranchID: branchID, AsOf: asOf, Transactions: txs}
	for _, src := range c.sources {
		commitments, err := src.Commitments(ctx, q, branchID, commitCutoff)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Commitments = append(snap.Commitments, commitments...)
	}
	return snap, nil
}

// AllBranches computes every branch independently. The result is ordered by branch id.
func (c *Calculator) AllBranches(ctx context.Context, asOf time.Time) ([]Balance, error) {
	var ids []int64
	err := c.uow.ReadAll(ctx, func(ctx context.Context, q db.Querier) error {
		var err error
		ids, err = c.txs.BranchIDs(ctx, q)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("balance: list branches: %w", err)
	}

	out := make([]Balance, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.fanOutCap)
	for i, id := range ids {
		g.Go(func() error {
			bal, err := c.Compute(gctx, id, asOf)
			if err != nil {
				return fmt.Errorf("balance: branch %d: %w", id, err)
			}
			out[i] = bal
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BranchID < out[j].BranchID })
	return out, nil
}

func (c *Calculator) report(bal Balance) {
	for _, w := range bal.Warnings {
		c.logger.Warn("balance integrity warning",
			slog.Int64("branch_id", bal.BranchID),
			slog.String("bucket", string(w.Bucket)),
			slog.Int64("raw_available", w.RawAvailable.Minor()),
		)
		if c.recorder != nil {
			c.recorder.IntegrityWarning(bal.BranchID, w.Bucket)
		}
	}
}
