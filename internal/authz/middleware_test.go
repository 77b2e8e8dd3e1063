package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/taskwatch/internal/models"
)

func whoAmI(t *testing.T, got *int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromRequest(r)
		require.True(t, ok)
		*got = uid
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthenticatorAcceptsValidToken(t *testing.T) {
	auth := NewAuthenticator("secret")
	token, err := auth.IssueToken(42, []models.UserRole{models.RoleCoordinator}, time.Hour)
	require.NoError(t, err)

	var got int64
	h := auth.Middleware(RequireRole(models.RoleCoordinator)(whoAmI(t, &got)))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(42), got)
}

func TestAuthenticatorRejects(t *testing.T) {
	auth := NewAuthenticator("secret")
	expired, err := auth.IssueToken(1, []models.UserRole{models.RoleMember}, -time.Minute)
	require.NoError(t, err)
	foreign, err := NewAuthenticator("other").IssueToken(1, []models.UserRole{models.RoleMember}, time.Hour)
	require.NoError(t, err)

	tests := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"expired":        "Bearer " + expired,
		"bad signature":  "Bearer " + foreign,
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			var got int64
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			auth.Middleware(whoAmI(t, &got)).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireRoleForbidsLowerTier(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), 3, []models.UserRole{models.RoleMember}))
	rec := httptest.NewRecorder()

	RequireRole(models.RoleCoordinator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCanActFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	member := req.WithContext(WithIdentity(req.Context(), 3, []models.UserRole{models.RoleMember}))
	coord := req.WithContext(WithIdentity(req.Context(), 4, []models.UserRole{models.RoleCoordinator}))

	assert.True(t, CanActFor(member, 3))
	assert.False(t, CanActFor(member, 5))
	assert.True(t, CanActFor(coord, 5))
}
