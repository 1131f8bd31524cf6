package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/cashdesk/internal/dividend"
	"github.com/odyssey-erp/cashdesk/internal/inkasso"
	"github.com/odyssey-erp/cashdesk/internal/transfer"
)

// Enqueuer is the part of asynq.Client used to publish tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier publishes committed workflow events as asynq tasks. It satisfies the notifier
// ports of the dividend, transfer and inkasso services.
type Notifier struct {
	client Enqueuer
	queue  string
}

var (
	_ dividend.Notifier = (*Notifier)(nil)
	_ transfer.Notifier = (*Notifier)(nil)
	_ inkasso.Notifier  = (*Notifier)(nil)
)

// NewNotifier constructs a Notifier publishing to queue.
func NewNotifier(client Enqueuer, queue string) *Notifier {
	if queue == "" {
		queue = QueueNotifications
	}
	return &Notifier{client: client, queue: queue}
}

func (n *Notifier) enqueue(ctx context.Context, task *asynq.Task, err error) error {
	if err != nil {
		return err
	}
	if _, err := n.client.EnqueueContext(ctx, task, asynq.Queue(n.queue), asynq.MaxRetry(10)); err != nil {
		return fmt.Errorf("jobs: enqueue %s: %w", task.Type(), err)
	}
	return nil
}

// DividendRequested implements dividend.Notifier.
func (n *Notifier) DividendRequested(ctx context.Context, evt dividend.RequestedEvent) error {
	task, err := NewDividendRequestedTask(evt)
	return n.enqueue(ctx, task, err)
}

// DividendReviewed implements dividend.Notifier.
func (n *Notifier) DividendReviewed(ctx context.Context, evt dividend.ReviewedEvent) error {
	task, err := NewDividendReviewedTask(evt)
	return n.enqueue(ctx, task, err)
}

// TransferRecorded implements transfer.Notifier.
func (n *Notifier) TransferRecorded(ctx context.Context, evt transfer.RecordedEvent) error {
	task, err := NewTransferRecordedTask(evt)
	return n.enqueue(ctx, task, err)
}

// InkassoDelivered implements inkasso.Notifier.
func (n *Notifier) InkassoDelivered(ctx context.Context, evt inkasso.DeliveredEvent) error {
	task, err := NewInkassoDeliveredTask(evt)
	return n.enqueue(ctx, task, err)
}
