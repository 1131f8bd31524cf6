// Package cashdeskhttp exposes the branch cash desk operations as a JSON API.
package cashdeskhttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/cashdesk/internal/balance"
	"github.com/odyssey-erp/cashdesk/internal/dividend"
	"github.com/odyssey-erp/cashdesk/internal/inkasso"
	"github.com/odyssey-erp/cashdesk/internal/ledger"
	"github.com/odyssey-erp/cashdesk/internal/platform/httpx"
	"github.com/odyssey-erp/cashdesk/internal/rbac"
	"github.com/odyssey-erp/cashdesk/internal/shared"
	"github.com/odyssey-erp/cashdesk/internal/transfer"
)

// BalanceService reads derived balances.
type BalanceService interface {
	Compute(ctx context.Context, branchID int64, asOf time.Time) (balance.Balance, error)
	AllBranches(ctx context.Context, asOf time.Time) ([]balance.Balance, error)
}

// DividendService runs the dividend spend request workflow.
type DividendService interface {
	Create(ctx context.Context, actor rbac.Actor, in dividend.CreateInput) (dividend.Request, error)
	Review(ctx context.Context, actor rbac.Actor, in dividend.ReviewInput) (dividend.Request, error)
	Get(ctx context.Context, branchID int64, id uuid.UUID) (dividend.Detail, error)
	List(ctx context.Context, branchID int64, f dividend.ListFilter) ([]dividend.Request, error)
}

// TransferService records safe transfers.
type TransferService interface {
	Create(ctx context.Context, actor rbac.Actor, in transfer.CreateInput) (transfer.Transfer, error)
	List(ctx context.Context, branchID int64, f transfer.ListFilter) ([]transfer.Transfer, error)
}

// InkassoService batches collection deliveries.
type InkassoService interface {
	ListUndelivered(ctx context.Context, branchID int64) ([]ledger.Transaction, error)
	Create(ctx context.Context, actor rbac.Actor, in inkasso.CreateInput) (inkasso.Delivery, error)
	List(ctx context.Context, branchID int64, limit int) ([]inkasso.Delivery, error)
	Get(ctx context.Context, branchID int64, id uuid.UUID) (inkasso.Detail, error)
}

// Handler serves the cash desk API. Every route expects an rbac.Actor in the request context.
type Handler struct {
	balances    BalanceService
	dividends   DividendService
	transfers   TransferService
	inkasso     InkassoService
	idempotency *shared.IdempotencyStore
	validate    *validator.Validate
	logger      *slog.Logger
	flight      singleflight.Group
}

// Params groups the handler dependencies. Idempotency may be nil to disable key handling.
type Params struct {
	Balances    BalanceService
	Dividends   DividendService
	Transfers   TransferService
	Inkasso     InkassoService
	Idempotency *shared.IdempotencyStore
	Logger      *slog.Logger
}

// NewHandler constructs the API handler.
func NewHandler(p Params) *Handler {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		balances:    p.Balances,
		dividends:   p.Dividends,
		transfers:   p.Transfers,
		inkasso:     p.Inkasso,
		idempotency: p.Idempotency,
		validate:    newValidator(),
		logger:      logger,
	}
}

// MountRoutes registers the API routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances", h.allBalances)
	r.Route("/branches/{branchID}", func(r chi.Router) {
		r.Get("/balance", h.branchBalance)

		r.Get("/dividend-requests", h.listDividends)
		r.Post("/dividend-requests", h.idempotent("dividend.create", h.createDividend))
		r.Get("/dividend-requests/{id}", h.getDividend)
		r.Post("/dividend-requests/{id}/review", h.idempotent("dividend.review", h.reviewDividend))

		r.Get("/transfers", h.listTransfers)
		r.Post("/transfers", h.idempotent("transfer.create", h.createTransfer))

		r.Get("/inkasso/undelivered", h.listUndelivered)
		r.Get("/inkasso/deliveries", h.listDeliveries)
		r.Post("/inkasso/deliveries", h.idempotent("inkasso.create", h.createDelivery))
		r.Get("/inkasso/deliveries/{id}", h.getDelivery)
	})
}

func (h *Handler) allBalances(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.balances.AllBranches(r.Context(), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"branches": out})
}

func (h *Handler) branchBalance(w http.ResponseWriter, r *http.Request) {
	branchID, err := branchParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	asOf, err := parseAsOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bal, err := h.computeShared(r.Context(), branchID, asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bal)
}

func (h *Handler) listDividends(w http.ResponseWriter, r *http.Request) {
	branchID, err := branchParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.dividends.List(r.Context(), branchID, dividend.ListFilter{
		Status: dividend.Status(r.URL.Query().Get("status")),
		Limit:  limit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": out})
}

func (h *Handler) getDividend(w http.ResponseWriter, r *http.Request) {
	branchID, err := branchParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	detail, err := h.dividends.Get(r.Context(), branchID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) createDividend(w http.ResponseWriter, r *http.Request) {
	branchID, err := branchParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body createDividendBody
	if err := h.decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := h.dividends.Create(r.Context(), actorOf(r), body.input(branchID))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.balanceChanged(branchID)
	httpx.JSON(w, http.StatusCreated, req)
}

func (h *Handler) reviewDividend(w http.ResponseWriter, r *http.Request) {
	branchID, err := branchParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body reviewBody
	if err := h.decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := h.dividends.Review(r.Context(), actorOf(r), body.input(branchID, id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.balanceChanged(branchID)
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) listTransfers(w http.ResponseWriter, r *http.Request) {
	branchID, err := branchParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.transfers.List(r.Context(), branchID, transfer.ListFilter{Range: rng, Limit: limit})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfers": out})
}

func (h *Handler) createTransfer(w http.ResponseWriter, r *http.Request) {
	branchID, err := branchParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body createTransferBody
	if err := h.decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.transfers.Create(r.Context(), actorOf(r), body.input(branchID))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.balanceChanged(branchID)
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) listUndelivered(w http.ResponseWriter, r *http.Request) {
	branchID, err := branchParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	txs, err := h.inkasso.ListUndelivered(r.Context(), branchID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": transactionViews(txs)})
}

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	branchID, err := branchParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.inkasso.List(r.Context(), branchID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deliveries": out})
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	branchID, err := branchParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	detail, err := h.inkasso.Get(r.Context(), branchID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, deliveryDetailView{Delivery: detail.Delivery, Transactions: transactionViews(detail.Transactions)})
}

func (h *Handler) createDelivery(w http.ResponseWriter, r *http.Request) {
	branchID, err := branchParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body createDeliveryBody
	if err := h.decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := body.input(branchID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.inkasso.Create(r.Context(), actorOf(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

// fail logs server-side failures and writes the problem document.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := httpx.Status(err); status >= http.StatusInternalServerError {
		h.logger.Error("cashdesk request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Any("error", err),
		)
	}
	httpx.RespondError(w, err)
}

func actorOf(r *http.Request) rbac.Actor {
	actor, _ := rbac.ActorFromContext(r.Context())
	return actor
}

func branchParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "branchID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid branch id %q", shared.ErrValidation, raw)
	}
	return id, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s %q", shared.ErrValidation, name, raw)
	}
	return id, nil
}

func parseAsOf(r *http.Request) (time.Time, error) {
	return parseTime(r, "as_of")
}

func parseRange(r *http.Request) (ledger.DateRange, error) {
	from, err := parseTime(r, "from")
	if err != nil {
		return ledger.DateRange{}, err
	}
	to, err := parseTime(r, "to")
	if err != nil {
		return ledger.DateRange{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return ledger.DateRange{}, fmt.Errorf("%w: to is before from", shared.ErrValidation)
	}
	return ledger.DateRange{From: from, To: to}, nil
}

func parseTime(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC3339", shared.ErrValidation, name)
	}
	return t, nil
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", shared.ErrValidation)
	}
	return limit, nil
}
