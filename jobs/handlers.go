package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/cashdesk/internal/balance"
	"github.com/odyssey-erp/cashdesk/internal/dividend"
	"github.com/odyssey-erp/cashdesk/internal/inkasso"
	jobmetrics "github.com/odyssey-erp/cashdesk/internal/jobs"
	"github.com/odyssey-erp/cashdesk/internal/money"
	"github.com/odyssey-erp/cashdesk/internal/rbac"
	"github.com/odyssey-erp/cashdesk/internal/transfer"
)

// Message is a rendered notification for the external delivery channel.
type Message struct {
	Topic    string
	BranchID int64
	// Audience is either a role name or a user id, as understood by the channel.
	Audience string
	Subject  string
	Body     string
}

// Sink hands rendered messages to email or messaging delivery.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

// LogSink writes messages to the structured log. It stands in for the delivery channel.
type LogSink struct {
	Logger *slog.Logger
}

// Deliver implements Sink.
func (s LogSink) Deliver(_ context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification",
		slog.String("topic", msg.Topic),
		slog.Int64("branch_id", msg.BranchID),
		slog.String("audience", msg.Audience),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}

// BalanceSweeper computes every branch balance.
type BalanceSweeper interface {
	AllBranches(ctx context.Context, asOf time.Time) ([]balance.Balance, error)
}

// Handlers renders notification tasks and runs the integrity sweep.
type Handlers struct {
	sink      Sink
	formatter money.Formatter
	metrics   *jobmetrics.Metrics
	sweeper   BalanceSweeper
	logger    *slog.Logger
}

// NewHandlers constructs the task handlers. sweeper may be nil when the sweep is not scheduled.
func NewHandlers(sink Sink, formatter money.Formatter, metrics *jobmetrics.Metrics, sweeper BalanceSweeper, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{sink: sink, formatter: formatter, metrics: metrics, sweeper: sweeper, logger: logger}
}

// TaskHandlers lists every handler for registration on the worker mux.
func (h *Handlers) TaskHandlers() []TaskHandler {
	out := []TaskHandler{
		{Type: TaskDividendRequested, Handler: h.HandleDividendRequested},
		{Type: TaskDividendReviewed, Handler: h.HandleDividendReviewed},
		{Type: TaskTransferRecorded, Handler: h.HandleTransferRecorded},
		{Type: TaskInkassoDelivered, Handler: h.HandleInkassoDelivered},
	}
	if h.sweeper != nil {
		out = append(out, TaskHandler{Type: TaskIntegritySweep, Handler: h.HandleIntegritySweep})
	}
	return out
}

func decode(t *asynq.Task, target any) error {
	if err := json.Unmarshal(t.Payload(), target); err != nil {
		return fmt.Errorf("jobs: decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}

// HandleDividendRequested asks the branch managers to review a request.
func (h *Handlers) HandleDividendRequested(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track(t.Type())
	var evt dividend.RequestedEvent
	if err := decode(t, &evt); err != nil {
		return tracker.End(err)
	}
	body := fmt.Sprintf("%q for %s: %s from operating expenses, %s awaiting dividend approval.",
		evt.Subject, h.formatter.Format(evt.Amount), h.formatter.Format(evt.OpexPortion), h.formatter.Format(evt.DividendPortion))
	return tracker.End(h.sink.Deliver(ctx, Message{
		Topic:    t.Type(),
		BranchID: evt.BranchID,
		Audience: string(rbac.RoleGeneralManager),
		Subject:  "Dividend spend request awaiting review",
		Body:     body,
	}))
}

// HandleDividendReviewed tells the requester the outcome.
func (h *Handlers) HandleDividendReviewed(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track(t.Type())
	var evt dividend.ReviewedEvent
	if err := decode(t, &evt); err != nil {
		return tracker.End(err)
	}
	body := fmt.Sprintf("Request %s was %s; dividend portion %s.", evt.RequestID, evt.Status, h.formatter.Format(evt.DividendPortion))
	if evt.Note != "" {
		body += " Note: " + evt.Note
	}
	return tracker.End(h.sink.Deliver(ctx, Message{
		Topic:    t.Type(),
		BranchID: evt.BranchID,
		Audience: fmt.Sprintf("user:%d", evt.RequestedBy),
		Subject:  "Dividend spend request " + string(evt.Status),
		Body:     body,
	}))
}

// HandleTransferRecorded informs managers of a safe transfer.
func (h *Handlers) HandleTransferRecorded(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track(t.Type())
	var evt transfer.RecordedEvent
	if err := decode(t, &evt); err != nil {
		return tracker.End(err)
	}
	body := fmt.Sprintf("%s moved to the central safe (dividend %s, marketing %s).",
		h.formatter.Format(evt.Total), h.formatter.Format(evt.DividendAmount), h.formatter.Format(evt.MarketingAmount))
	return tracker.End(h.sink.Deliver(ctx, Message{
		Topic:    t.Type(),
		BranchID: evt.BranchID,
		Audience: string(rbac.RoleGeneralManager),
		Subject:  "Cash transfer recorded",
		Body:     body,
	}))
}

// HandleInkassoDelivered confirms a delivery batch.
func (h *Handlers) HandleInkassoDelivered(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track(t.Type())
	var evt inkasso.DeliveredEvent
	if err := decode(t, &evt); err != nil {
		return tracker.End(err)
	}
	body := fmt.Sprintf("%d collections totalling %s delivered on %s.",
		evt.TransactionCount, h.formatter.Format(evt.TotalAmount), evt.DeliveredDate.Format("2006-01-02"))
	return tracker.End(h.sink.Deliver(ctx, Message{
		Topic:    t.Type(),
		BranchID: evt.BranchID,
		Audience: string(rbac.RoleGeneralManager),
		Subject:  "Inkasso delivery recorded",
		Body:     body,
	}))
}

// HandleIntegritySweep recomputes every branch so clamped buckets surface in logs and metrics
// even when nobody queries the branch.
func (h *Handlers) HandleIntegritySweep(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track(t.Type())
	balances, err := h.sweeper.AllBranches(ctx, time.Time{})
	if err != nil {
		return tracker.End(err)
	}
	warnings := 0
	for _, b := range balances {
		warnings += len(b.Warnings)
	}
	h.logger.Info("integrity sweep finished", slog.Int("branches", len(balances)), slog.Int("warnings", warnings))
	return tracker.End(nil)
}
