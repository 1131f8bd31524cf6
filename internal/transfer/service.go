package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/cashdesk/internal/audit"
	"github.com/odyssey-erp/cashdesk/internal/balance"
	"github.com/odyssey-erp/cashdesk/internal/ledger"
	"github.com/odyssey-erp/cashdesk/internal/platform/db"
	"github.com/odyssey-erp/cashdesk/internal/rbac"
	"github.com/odyssey-erp/cashdesk/internal/shared"
)

// BalanceReader computes a branch balance inside an open unit of work.
type BalanceReader interface {
	Within(ctx context.Context, q db.Querier, branchID int64, asOf time.Time) (balance.Balance, error)
}

// Notifier receives transfer events after they commit.
type Notifier interface {
	TransferRecorded(ctx context.Context, evt RecordedEvent) error
}

// Service records cash transfers.
type Service struct {
	uow      db.UnitOfWork
	repo     Repository
	balances BalanceReader
	trail    audit.Trail
	notifier Notifier
	observer shared.WriteObserver
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the recorder.
func NewService(uow db.UnitOfWork, repo Repository, balances BalanceReader, trail audit.Trail, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{uow: uow, repo: repo, balances: balances, trail: trail, logger: logger, now: time.Now}
}

// SetNotifier injects the outbound event sink.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetObserver injects write outcome instrumentation.
func (s *Service) SetObserver(o shared.WriteObserver) {
	s.observer = o
}

// Create records a transfer after checking both buckets can cover it.
func (s *Service) Create(ctx context.Context, actor rbac.Actor, in CreateInput) (Transfer, error) {
	if err := rbac.Authorize(actor, rbac.CapRecordTransfer); err != nil {
		return Transfer{}, err
	}
	if err := in.Validate(); err != nil {
		return Transfer{}, err
	}

	var t Transfer
	err := s.uow.InBranch(ctx, in.BranchID, func(ctx context.Context, q db.Querier) error {
		bal, err := s.balances.Within(ctx, q, in.BranchID, time.Time{})
		if err != nil {
			return err
		}
		if err := bal.Require(ledger.BucketDividend, in.DividendAmount); err != nil {
			return fmt.Errorf("transfer: %w", err)
		}
		if err := bal.Require(ledger.BucketMarketing, in.MarketingAmount); err != nil {
			return fmt.Errorf("transfer: %w", err)
		}

		t = Transfer{
			ID:              uuid.New(),
			BranchID:        in.BranchID,
			TransferredBy:   actor.ID,
			DividendAmount:  in.DividendAmount,
			MarketingAmount: in.MarketingAmount,
			Notes:           in.Notes,
			CreatedAt:       s.now().UTC(),
		}
		if err := s.repo.Insert(ctx, q, t); err != nil {
			return err
		}
		return s.trail.Record(ctx, q, audit.Entry{
			ActorID:  actor.ID,
			BranchID: in.BranchID,
			Action:   "transfer.recorded",
			Entity:   "cash_transfers",
			EntityID: t.ID.String(),
			Meta: map[string]any{
				"dividend_amount":  t.DividendAmount.Minor(),
				"marketing_amount": t.MarketingAmount.Minor(),
			},
			At: t.CreatedAt,
		})
	})
	if s.observer != nil {
		s.observer.ObserveWrite("transfer.create", err)
	}
	if err != nil {
		return Transfer{}, err
	}

	s.logger.Info("cash transfer recorded",
		slog.Int64("branch_id", t.BranchID),
		slog.String("transfer_id", t.ID.String()),
		slog.Int64("total", t.Total().Minor()),
	)
	if s.notifier != nil {
		evt := RecordedEvent{
			TransferID:      t.ID,
			BranchID:        t.BranchID,
			TransferredBy:   t.TransferredBy,
			DividendAmount:  t.DividendAmount,
			MarketingAmount: t.MarketingAmount,
			Total:           t.Total(),
			At:              t.CreatedAt,
		}
		if err := s.notifier.TransferRecorded(context.WithoutCancel(ctx), evt); err != nil {
			s.logger.Warn("transfer notification failed", slog.String("transfer_id", t.ID.String()), slog.Any("error", err))
		}
	}
	return t, nil
}

// List returns branch transfers newest first.
func (s *Service) List(ctx context.Context, branchID int64, f ListFilter) ([]Transfer, error) {
	f.Limit = shared.PageLimit(f.Limit)
	var out []Transfer
	err := s.uow.Read(ctx, branchID, func(ctx context.Context, q db.Querier) error {
		var err error
		out, err = s.repo.List(ctx, q, branchID, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Source feeds transfer commitments into the balance calculator.
type Source struct {
	repo Repository
}

// NewSource constructs the commitment source.
func NewSource(repo Repository) *Source {
	return &Source{repo: repo}
}

// Commitments implements balance.CommitmentSource.
func (s *Source) Commitments(ctx context.Context, q db.Querier, branchID int64, asOf time.Time) ([]balance.Commitment, error) {
	transfers, err := s.repo.ListForBalance(ctx, q, branchID, asOf)
	if err != nil {
		return nil, err
	}
	var out []balance.Commitment
	for _, t := range transfers {
		out = append(out, t.Commitments(asOf)...)
	}
	return out, nil
}
