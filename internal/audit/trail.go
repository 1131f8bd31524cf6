// Package audit records the audit trail and approval history of committed cash ledger writes.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/cashdesk/internal/platform/db"
)

// Entry represents a record stored in audit_logs.
type Entry struct {
	ActorID  int64
	BranchID int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Validate checks the mandatory columns.
func (e Entry) Validate() error {
	if e.Action == "" || e.Entity == "" || e.EntityID == "" {
		return errors.New("audit: entry requires action/entity/entity_id")
	}
	return nil
}

// Trail writes audit and approval rows inside the caller's transaction.
type Trail interface {
	Record(ctx context.Context, q db.Querier, e Entry) error
	RecordApproval(ctx context.Context, q db.Querier, a Approval) error
	Approvals(ctx context.Context, q db.Querier, module, refID string) ([]Approval, error)
}

// PGTrail implements Trail on audit_logs and approvals.
type PGTrail struct{}

// NewPGTrail returns a PGTrail.
func NewPGTrail() *PGTrail {
	return &PGTrail{}
}

// Record persists the log entry.
func (PGTrail) Record(ctx context.Context, q db.Querier, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	metaJSON, err := json.Marshal(e.Meta)
	if err != nil {
		return fmt.Errorf("audit: encode meta: %w", err)
	}
	var at *time.Time
	if !e.At.IsZero() {
		at = &e.At
	}
	_, err = q.Exec(ctx, `INSERT INTO audit_logs (actor_id, branch_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`, e.ActorID, e.BranchID, e.Action, e.Entity, e.EntityID, metaJSON, at)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}
