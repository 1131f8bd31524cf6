package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/cashdesk/internal/platform/db"
)

// ApprovalAction enumerates approval log actions.
type ApprovalAction string

const (
	// ApprovalSubmit marks a submit action.
	ApprovalSubmit ApprovalAction = "SUBMIT"
	// ApprovalApprove marks an approve action.
	ApprovalApprove ApprovalAction = "APPROVE"
	// ApprovalReject marks a reject action.
	ApprovalReject ApprovalAction = "REJECT"
)

// Approval represents a single approval record.
type Approval struct {
	ID      int64          `json:"id"`
	Module  string         `json:"module"`
	RefID   string         `json:"ref_id"`
	ActorID int64          `json:"actor_id"`
	Action  ApprovalAction `json:"action"`
	Note    string         `json:"note,omitempty"`
	At      time.Time      `json:"at"`
}

// Validate checks the mandatory fields.
func (a Approval) Validate() error {
	switch {
	case a.Module == "":
		return errors.New("audit: approval module required")
	case a.ActorID == 0:
		return errors.New("audit: approval actor required")
	case a.RefID == "":
		return errors.New("audit: approval ref id required")
	case a.Action == "":
		return errors.New("audit: approval action required")
	}
	return nil
}

// RecordApproval writes an approval entry.
func (PGTrail) RecordApproval(ctx context.Context, q db.Querier, a Approval) error {
	if err := a.Validate(); err != nil {
		return err
	}
	var at *time.Time
	if !a.At.IsZero() {
		at = &a.At
	}
	_, err := q.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor_id, action, note, at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, a.Module, a.RefID, a.ActorID, string(a.Action), a.Note, at)
	if err != nil {
		return fmt.Errorf("audit: insert approval: %w", err)
	}
	return nil
}

// Approvals returns approvals for module/ref in chronological order.
func (PGTrail) Approvals(ctx context.Context, q db.Querier, module, refID string) ([]Approval, error) {
	rows, err := q.Query(ctx, `SELECT id, module, ref_id, actor_id, action, note, at
FROM approvals WHERE module=$1 AND ref_id=$2 ORDER BY at ASC, id ASC`, module, refID)
	if err != nil {
		return nil, fmt.Errorf("audit: list approvals: %w", err)
	}
	defer rows.Close()
	var out []Approval
	for rows.Next() {
		var (
			a      Approval
			action string
			note   *string
		)
		if err := rows.Scan(&a.ID, &a.Module, &a.RefID, &a.ActorID, &action, &note, &a.At); err != nil {
			return nil, fmt.Errorf("audit: scan approval: %w", err)
		}
		a.Action = ApprovalAction(action)
		if note != nil {
			a.Note = *note
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
