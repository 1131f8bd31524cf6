package inkasso

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/cashdesk/internal/audit"
	"github.com/odyssey-erp/cashdesk/internal/ledger"
	"github.com/odyssey-erp/cashdesk/internal/platform/db"
	"github.com/odyssey-erp/cashdesk/internal/rbac"
	"github.com/odyssey-erp/cashdesk/internal/shared"
)

// Notifier receives delivery events after they commit.
type Notifier interface {
	InkassoDelivered(ctx context.Context, evt DeliveredEvent) error
}

// Service batches collection transactions into deliveries.
type Service struct {
	uow      db.UnitOfWork
	txs      ledger.Store
	repo     Repository
	trail    audit.Trail
	notifier Notifier
	observer shared.WriteObserver
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the batcher.
func NewService(uow db.UnitOfWork, txs ledger.Store, repo Repository, trail audit.Trail, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{uow: uow, txs: txs, repo: repo, trail: trail, logger: logger, now: time.Now}
}

// SetNotifier injects the outbound event sink.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetObserver injects write outcome instrumentation.
func (s *Service) SetObserver(o shared.WriteObserver) {
	s.observer = o
}

// ListUndelivered returns undelivered collections of the branch, oldest first.
func (s *Service) ListUndelivered(ctx context.Context, branchID int64) ([]ledger.Transaction, error) {
	undelivered := false
	var out []ledger.Transaction
	err := s.uow.Read(ctx, branchID, func(ctx context.Context, q db.Querier) error {
		var err error
		out, err = s.txs.ListTransactions(ctx, q, branchID, ledger.DateRange{}, ledger.Filter{
			Types:     []ledger.TxType{ledger.TxCollection},
			Delivered: &undelivered,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Create records a delivery and flips every referenced transaction to delivered. The
// eligibility check and the flip run under the same branch lock; any ineligible id fails the
// whole batch.
func (s *Service) Create(ctx context.Context, actor rbac.Actor, in CreateInput) (Delivery, error) {
	if err := rbac.Authorize(actor, rbac.CapDeliverInkasso); err != nil {
		return Delivery{}, err
	}
	if err := in.Validate(); err != nil {
		return Delivery{}, err
	}

	var d Delivery
	err := s.uow.InBranch(ctx, in.BranchID, func(ctx context.Context, q db.Querier) error {
		locked, err := s.txs.LockTransactions(ctx, q, in.TransactionIDs)
		if err != nil {
			return err
		}
		found := make(map[int64]ledger.Transaction, len(locked))
		for _, tx := range locked {
			found[tx.ID] = tx
		}
		batch := make([]ledger.Transaction, 0, len(in.TransactionIDs))
		for _, id := range in.TransactionIDs {
			tx, ok := found[id]
			if !ok {
				return fmt.Errorf("%w: transaction %d", shared.ErrNotFound, id)
			}
			if err := eligible(tx, in.BranchID); err != nil {
				return err
			}
			batch = append(batch, tx)
		}

		now := s.now().UTC()
		deliveredDate := in.DeliveredDate
		if deliveredDate.IsZero() {
			deliveredDate = now
		}
		count, total := totals(batch)
		d = Delivery{
			ID:               uuid.New(),
			BranchID:         in.BranchID,
			DeliveredBy:      actor.ID,
			DeliveredDate:    deliveredDate,
			Notes:            in.Notes,
			TransactionIDs:   append([]int64(nil), in.TransactionIDs...),
			TransactionCount: count,
			TotalAmount:      total,
			CreatedAt:        now,
		}
		if err := s.repo.Insert(ctx, q, d); err != nil {
			return err
		}
		if err := s.txs.MarkDelivered(ctx, q, d.TransactionIDs); err != nil {
			return err
		}
		return s.trail.Record(ctx, q, audit.Entry{
			ActorID:  actor.ID,
			BranchID: in.BranchID,
			Action:   "inkasso.delivered",
			Entity:   "inkasso_deliveries",
			EntityID: d.ID.String(),
			Meta: map[string]any{
				"transaction_ids": d.TransactionIDs,
				"total_amount":    d.TotalAmount.Minor(),
			},
			At: now,
		})
	})
	if s.observer != nil {
		s.observer.ObserveWrite("inkasso.create", err)
	}
	if err != nil {
		return Delivery{}, err
	}

	s.logger.Info("inkasso delivery recorded",
		slog.Int64("branch_id", d.BranchID),
		slog.String("delivery_id", d.ID.String()),
		slog.Int("transaction_count", d.TransactionCount),
		slog.Int64("total_amount", d.TotalAmount.Minor()),
	)
	if s.notifier != nil {
		if err := s.notifier.InkassoDelivered(context.WithoutCancel(ctx), DeliveredEvent{
			DeliveryID:       d.ID,
			BranchID:         d.BranchID,
			DeliveredBy:      d.DeliveredBy,
			DeliveredDate:    d.DeliveredDate,
			TransactionCount: d.TransactionCount,
			TotalAmount:      d.TotalAmount,
		}); err != nil {
			s.logger.Warn("inkasso notification failed", slog.String("delivery_id", d.ID.String()), slog.Any("error", err))
		}
	}
	return d, nil
}

// List returns branch deliveries newest first.
func (s *Service) List(ctx context.Context, branchID int64, limit int) ([]Delivery, error) {
	limit = shared.PageLimit(limit)
	var out []Delivery
	err := s.uow.Read(ctx, branchID, func(ctx context.Context, q db.Querier) error {
		var err error
		out, err = s.repo.List(ctx, q, branchID, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a delivery with its transactions.
func (s *Service) Get(ctx context.Context, branchID int64, id uuid.UUID) (Detail, error) {
	var out Detail
	err := s.uow.Read(ctx, branchID, func(ctx context.Context, q db.Querier) error {
		d, err := s.repo.Get(ctx, q, branchID, id)
		if err != nil {
			return err
		}
		txs, err := s.txs.GetTransactions(ctx, q, d.TransactionIDs)
		if err != nil {
			return err
		}
		out = Detail{Delivery: d, Transactions: txs}
		return nil
	})
	if err != nil {
		return Detail{}, err
	}
	return out, nil
}
