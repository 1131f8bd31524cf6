package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/cashdesk/internal/dividend"
	"github.com/odyssey-erp/cashdesk/internal/inkasso"
	"github.com/odyssey-erp/cashdesk/internal/transfer"
)

const (
	// QueueDefault is the queue of maintenance tasks.
	QueueDefault = "default"
	// QueueNotifications is the default queue of outbound notification tasks.
	QueueNotifications = "notifications"

	TaskDividendRequested = "cashdesk:dividend.requested"
	TaskDividendReviewed  = "cashdesk:dividend.reviewed"
	TaskTransferRecorded  = "cashdesk:transfer.recorded"
	TaskInkassoDelivered  = "cashdesk:inkasso.delivered"
	TaskIntegritySweep    = "cashdesk:balance.integrity_sweep"
)

func newTask(typ string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode %s: %w", typ, err)
	}
	return asynq.NewTask(typ, data), nil
}

// NewDividendRequestedTask constructs the task announcing a new request.
func NewDividendRequestedTask(evt dividend.RequestedEvent) (*asynq.Task, error) {
	return newTask(TaskDividendRequested, evt)
}

// NewDividendReviewedTask constructs the task announcing a review outcome.
func NewDividendReviewedTask(evt dividend.ReviewedEvent) (*asynq.Task, error) {
	return newTask(TaskDividendReviewed, evt)
}

// NewTransferRecordedTask constructs the task announcing a transfer.
func NewTransferRecordedTask(evt transfer.RecordedEvent) (*asynq.Task, error) {
	return newTask(TaskTransferRecorded, evt)
}

// NewInkassoDeliveredTask constructs the task announcing a delivery.
func NewInkassoDeliveredTask(evt inkasso.DeliveredEvent) (*asynq.Task, error) {
	return newTask(TaskInkassoDelivered, evt)
}

// NewIntegritySweepTask constructs the periodic all-branches balance check.
func NewIntegritySweepTask() *asynq.Task {
	return asynq.NewTask(TaskIntegritySweep, nil)
}
