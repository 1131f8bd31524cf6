package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/cashdesk/internal/platform/db"
	"github.com/odyssey-erp/cashdesk/internal/shared"
)

// RoleLookup resolves the role of a user.
type RoleLookup interface {
	RoleOf(ctx context.Context, userID int64) (Role, error)
}

// Service resolves roles from the user_roles assignment table.
type Service struct {
	q db.Querier
}

// NewService constructs the role lookup.
func NewService(q db.Querier) *Service {
	return &Service{q: q}
}

// RoleOf returns the strongest cash ledger role assigned to userID. Users holding none of the
// known roles yield NotFound.
func (s *Service) RoleOf(ctx context.Context, userID int64) (Role, error) {
	rows, err := s.q.Query(ctx, `SELECT r.name FROM user_roles ur
JOIN roles r ON r.id = ur.role_id
WHERE ur.user_id = $1 AND r.name = ANY($2)`, userID, []string{string(RoleBranchOperator), string(RoleGeneralManager)})
	if err != nil {
		return "", db.Classify(fmt.Errorf("rbac: lookup role: %w", err))
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return "", db.Classify(fmt.Errorf("rbac: scan role: %w", err))
	}
	return strongest(names, userID)
}

func strongest(names []string, userID int64) (Role, error) {
	var found Role
	for _, n := range names {
		role := Role(n)
		if !role.IsValid() {
			continue
		}
		if role == RoleGeneralManager {
			return role, nil
		}
		found = role
	}
	if found == "" {
		return "", fmt.Errorf("%w: no cash desk role for user %d", shared.ErrNotFound, userID)
	}
	return found, nil
}
