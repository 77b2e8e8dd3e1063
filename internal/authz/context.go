package authz

import (
	"context"
	"net/http"

	"github.com/stanstork/taskwatch/internal/models"
)

type contextKey string

const (
	userIDKey    contextKey = "user_id"
	userRolesKey contextKey = "user_roles"
)

// WithIdentity stores the caller's user id and roles on the context.
func WithIdentity(ctx context.Context, userID int64, roles []models.UserRole) context.Context {
	if userID > 0 {
		ctx = context.WithValue(ctx, userIDKey, userID)
	}
	if len(roles) == 0 {
		roles = []models.UserRole{models.RoleMember}
	}
	return context.WithValue(ctx, userRolesKey, roles)
}

func UserIDFromRequest(r *http.Request) (int64, bool) {
	uid, ok := r.Context().Value(userIDKey).(int64)
	if !ok || uid <= 0 {
		return 0, false
	}
	return uid, true
}

func RolesFromRequest(r *http.Request) ([]models.UserRole, bool) {
	roles, ok := r.Context().Value(userRolesKey).([]models.UserRole)
	if !ok || len(roles) == 0 {
		return nil, false
	}
	for _, role := range roles {
		if !models.IsValidRole(role) {
			return nil, false
		}
	}
	return roles, true
}

// CanActFor reports whether the caller may read or change data owned by
// userID: the user themself, or a coordinator and above.
func CanActFor(r *http.Request, userID int64) bool {
	if uid, ok := UserIDFromRequest(r); ok && uid == userID {
		return true
	}
	roles, ok := RolesFromRequest(r)
	return ok && models.HasAtLeast(roles, models.RoleCoordinator)
}
