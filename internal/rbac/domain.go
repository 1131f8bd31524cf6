// Package rbac consumes the external role assignment and turns it into capability checks.
package rbac

import (
	"fmt"

	"github.com/odyssey-erp/cashdesk/internal/shared"
)

// Role distinguishes desk operators from managers.
type Role string

const (
	RoleBranchOperator Role = "branch_operator"
	RoleGeneralManager Role = "general_manager"
)

// IsValid reports whether the role is known to the cash ledger.
func (r Role) IsValid() bool {
	return r == RoleBranchOperator || r == RoleGeneralManager
}

// Actor is the acting user of an operation.
type Actor struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

// Capability names a gated cash ledger operation.
type Capability string

const (
	CapRequestDividend Capability = "dividend.request"
	CapReviewDividend  Capability = "dividend.review"
	CapRecordTransfer  Capability = "transfer.record"
	CapDeliverInkasso  Capability = "inkasso.deliver"
)

var grants = map[Capability][]Role{
	CapRequestDividend: {RoleBranchOperator, RoleGeneralManager},
	CapReviewDividend:  {RoleGeneralManager},
	CapRecordTransfer:  {RoleGeneralManager},
	CapDeliverInkasso:  {RoleBranchOperator, RoleGeneralManager},
}

// Can reports whether the actor holds the capability.
func (a Actor) Can(c Capability) bool {
	if a.ID <= 0 {
		return false
	}
	for _, r := range grants[c] {
		if a.Role == r {
			return true
		}
	}
	return false
}

// Authorize returns a Forbidden error when actor lacks c.
func Authorize(actor Actor, c Capability) error {
	if actor.Can(c) {
		return nil
	}
	return fmt.Errorf("%w: user %d with role %q may not %s", shared.ErrForbidden, actor.ID, actor.Role, c)
}
