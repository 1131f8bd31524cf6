package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-erp/cashdesk/internal/platform/httpx"
	"github.com/odyssey-erp/cashdesk/internal/shared"
)

// UserHeader carries the authenticated user id set by the upstream gateway.
const UserHeader = "X-User-ID"

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// Middleware resolves the acting user for HTTP handlers.
type Middleware struct {
	Roles  RoleLookup
	Logger *slog.Logger
}

// Actor resolves the user header into an Actor. Requests without a resolvable user are
// rejected with 403.
func (m Middleware) Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := m.currentUserID(r)
		if !ok {
			httpx.RespondError(w, fmt.Errorf("%w: missing or malformed %s", shared.ErrForbidden, UserHeader))
			return
		}
		role, err := m.Roles.RoleOf(r.Context(), userID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				httpx.RespondError(w, fmt.Errorf("%w: user %d holds no cash desk role", shared.ErrForbidden, userID))
				return
			}
			if m.Logger != nil {
				m.Logger.Error("rbac resolve actor", slog.Int64("user_id", userID), slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		ctx := ContextWithActor(r.Context(), Actor{ID: userID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get(UserHeader))
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		if m.Logger != nil {
			m.Logger.Warn("rbac parse user id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}
