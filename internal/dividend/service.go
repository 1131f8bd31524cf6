package dividend

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

const (
	auditModule = "dividend"
	auditEntity = "dividend_requests"
)

// BalanceReader computes a branch balance inside an open unit of work.
type BalanceReader interface {
	Within(ctx context.Context, q db.Querier, branchID int64, asOf time.Time) (balance.Balance, error)
}

// Notifier receives workflow events after they commit.
type Notifier interface {
	DividendRequested(ctx context.Context, evt RequestedEvent) error
	DividendReviewed(ctx context.Context, evt ReviewedEvent) error
}

// Service orchestrates dividend spend requests.
type Service struct {
	uow          db.UnitOfWork
	repo         Repository
	balances     BalanceReader
	expenseTypes ExpenseTypes
	trail        audit.Trail
	notifier     Notifier
	observer     shared.WriteObserver
	logger       *slog.Logger
	now          func() time.Time
	newID        func() uuid.UUID
}

// NewService constructs the workflow service.
func NewService(uow db.UnitOfWork, repo Repository, balances BalanceReader, expenseTypes ExpenseTypes, trail audit.Trail, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		uow:          uow,
		repo:         repo,
		balances:     balances,
		expenseTypes: expenseTypes,
		trail:        trail,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.New,
	}
}

// SetNotifier injects the outbound event sink.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetObserver injects write outcome instrumentation.
func (s *Service) SetObserver(o shared.WriteObserver) {
	s.observer = o
}

// Create files a request. The OpEx share is spent immediately; the remainder is reserved
// against the dividend bucket until review. The split is fixed here and never recomputed.
func (s *Service) Create(ctx context.Context, actor rbac.Actor, in CreateInput) (Request, error) {
	if err := rbac.Authorize(actor, rbac.CapRequestDividend); err != nil {
		return Request{}, err
	}
	if err := in.Validate(); err != nil {
		return Request{}, err
	}

	var req Request
	err := s.uow.InBranch(ctx, in.BranchID, func(ctx context.Context, q db.Querier) error {
		active, err := s.expenseTypes.IsActive(ctx, q, in.ExpenseTypeID)
		if err != nil {
			return err
		}
		if !active {
			return fmt.Errorf("%w: expense type %d is not active", shared.ErrValidation, in.ExpenseTypeID)
		}

		bal, err := s.balances.Within(ctx, q, in.BranchID, time.Time{})
		if err != nil {
			return err
		}
		opex, dividend := Split(bal.Available(ledger.BucketOpEx), in.Amount)
		if dividend.IsPositive() {
			if err := bal.Require(ledger.BucketDividend, dividend); err != nil {
				return fmt.Errorf("dividend: fund request: %w", err)
			}
		}

		now := s.now().UTC()
		req = Request{
			ID:              s.newID(),
			BranchID:        in.BranchID,
			RequestedBy:     actor.ID,
			Subject:         in.Subject,
			Amount:          in.Amount,
			ExpenseTypeID:   in.ExpenseTypeID,
			Reason:          in.Reason,
			OpexPortion:     opex,
			DividendPortion: dividend,
			Status:          StatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.repo.Insert(ctx, q, req); err != nil {
			return err
		}
		if err := s.trail.Record(ctx, q, audit.Entry{
			ActorID:  actor.ID,
			BranchID: in.BranchID,
			Action:   "dividend.requested",
			Entity:   auditEntity,
			EntityID: req.ID.String(),
			Meta: map[string]any{
				"amount":           req.Amount.Minor(),
				"opex_portion":     opex.Minor(),
				"dividend_portion": dividend.Minor(),
			},
			At: now,
		}); err != nil {
			return err
		}
		return s.trail.RecordApproval(ctx, q, audit.Approval{
			Module:  auditModule,
			RefID:   req.ID.String(),
			ActorID: actor.ID,
			Action:  audit.ApprovalSubmit,
			Note:    in.Reason,
			At:      now,
		})
	})
	s.observe("dividend.create", err)
	if err != nil {
		return Request{}, err
	}

	s.logger.Info("dividend request created",
		slog.Int64("branch_id", req.BranchID),
		slog.String("request_id", req.ID.String()),
		slog.Int64("opex_portion", req.OpexPortion.Minor()),
		slog.Int64("dividend_portion", req.DividendPortion.Minor()),
	)
	s.notify(ctx, "dividend.requested", func(ctx context.Context) error {
		return s.notifier.DividendRequested(ctx, RequestedEvent{
			RequestID:       req.ID,
			BranchID:        req.BranchID,
			RequestedBy:     req.RequestedBy,
			Subject:         req.Subject,
			Amount:          req.Amount,
			OpexPortion:     req.OpexPortion,
			DividendPortion: req.DividendPortion,
			At:              req.CreatedAt,
		})
	})
	return req, nil
}

// Review approves or rejects a pending request. Approval moves the dividend share from
// reserved to spent; rejection releases it. The OpEx share stays spent either way.
func (s *Service) Review(ctx context.Context, actor rbac.Actor, in ReviewInput) (Request, error) {
	if err := rbac.Authorize(actor, rbac.CapReviewDividend); err != nil {
		return Request{}, err
	}
	if err := in.Validate(); err != nil {
		return Request{}, err
	}
	target, _ := in.Action.Result()

	var req Request
	err := s.uow.InBranch(ctx, in.BranchID, func(ctx context.Context, q db.Querier) error {
		var err error
		req, err = s.repo.LoadForUpdate(ctx, q, in.BranchID, in.RequestID)
		if err != nil {
			return err
		}
		if req.Status.Terminal() {
			return fmt.Errorf("%w: request %s is already %s", shared.ErrInvalidState, req.ID, req.Status)
		}

		now := s.now().UTC()
		if err := s.repo.UpdateReview(ctx, q, ReviewUpdate{
			ID:         req.ID,
			Status:     target,
			ReviewedBy: actor.ID,
			Note:       in.Note,
			At:         now,
		}); err != nil {
			return err
		}
		reviewer := actor.ID
		req.Status = target
		req.ReviewedBy = &reviewer
		req.ReviewNote = in.Note
		req.ReviewedAt = &now
		req.UpdatedAt = now

		action := audit.ApprovalApprove
		if target == StatusRejected {
			action = audit.ApprovalReject
		}
		if err := s.trail.Record(ctx, q, audit.Entry{
			ActorID:  actor.ID,
			BranchID: in.BranchID,
			Action:   "dividend.reviewed",
			Entity:   auditEntity,
			EntityID: req.ID.String(),
			Meta: map[string]any{
				"status":           string(target),
				"dividend_portion": req.DividendPortion.Minor(),
			},
			At: now,
		}); err != nil {
			return err
		}
		return s.trail.RecordApproval(ctx, q, audit.Approval{
			Module:  auditModule,
			RefID:   req.ID.String(),
			ActorID: actor.ID,
			Action:  action,
			Note:    in.Note,
			At:      now,
		})
	})
	s.observe("dividend.review", err)
	if err != nil {
		return Request{}, err
	}

	s.logger.Info("dividend request reviewed",
		slog.Int64("branch_id", req.BranchID),
		slog.String("request_id", req.ID.String()),
		slog.String("status", string(req.Status)),
	)
	s.notify(ctx, "dividend.reviewed", func(ctx context.Context) error {
		return s.notifier.DividendReviewed(ctx, ReviewedEvent{
			RequestID:       req.ID,
			BranchID:        req.BranchID,
			RequestedBy:     req.RequestedBy,
			ReviewedBy:      actor.ID,
			Status:          req.Status,
			DividendPortion: req.DividendPortion,
			Note:            req.ReviewNote,
			At:              *req.ReviewedAt,
		})
	})
	return req, nil
}

// Get returns one request with its approval history.
func (s *Service) Get(ctx context.Context, branchID int64, id uuid.UUID) (Detail, error) {
	var out Detail
	err := s.uow.Read(ctx, branchID, func(ctx context.Context, q db.Querier) error {
		req, err := s.repo.Get(ctx, q, branchID, id)
		if err != nil {
			return err
		}
		approvals, err := s.trail.Approvals(ctx, q, auditModule, id.String())
		if err != nil {
			return err
		}
		out.Request = req
		out.History = make([]HistoryEntry, 0, len(approvals))
		for _, a := range approvals {
			out.History = append(out.History, HistoryEntry{ActorID: a.ActorID, Action: string(a.Action), Note: a.Note, At: a.At})
		}
		return nil
	})
	if err != nil {
		return Detail{}, err
	}
	return out, nil
}

// List returns branch requests newest first, optionally by status.
func (s *Service) List(ctx context.Context, branchID int64, f ListFilter) ([]Request, error) {
	if f.Status != "" && !f.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, f.Status)
	}
	f.Limit = shared.PageLimit(f.Limit)
	var out []Request
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

func (s *Service) observe(op string, err error) {
	if s.observer != nil {
		s.observer.ObserveWrite(op, err)
	}
}

// notify dispatches after commit. A failing notifier never undoes the committed change.
func (s *Service) notify(ctx context.Context, event string, send func(context.Context) error) {
	if s.notifier == nil {
		return
	}
	if err := send(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("dividend notification failed", slog.String("event", event), slog.Any("error", err))
	}
}

// Source feeds dividend request commitments into the balance calculator.
type Source struct {
	repo Repository
}

// NewSource constructs the commitment source.
func NewSource(repo Repository) *Source {
	return &Source{repo: repo}
}

// Commitments implements balance.CommitmentSource.
func (s *Source) Commitments(ctx context.Context, q db.Querier, branchID int64, asOf time.Time) ([]balance.Commitment, error) {
	reqs, err := s.repo.ListForBalance(ctx, q, branchID, asOf)
	if err != nil {
		return nil, err
	}
	var out []balance.Commitment
	for _, r := range reqs {
		out = append(out, r.Commitments(asOf)...)
	}
	return out, nil
}
