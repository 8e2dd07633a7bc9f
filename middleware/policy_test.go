package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/driftbox/authcore/domain"
	"github.com/driftbox/authcore/internal/auth/rbac"
)

// guard runs one request through RequireCapability with the given identity
// pre-attached, the way Resolve would leave it.
func guard(t *testing.T, identity *domain.Identity, action rbac.Action, subject rbac.Subject) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	handler := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	e.GET("/guarded", handler, RequireCapability(action, subject))

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if identity != nil {
		req = req.WithContext(domain.WithIdentity(req.Context(), identity))
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func activeIdentity() *domain.Identity {
	return &domain.Identity{
		UserID:   "user-1",
		Role:     domain.RoleUser,
		Status:   domain.UserStatusActive,
		AuthKind: domain.AuthKindSession,
	}
}

func TestRequireCapability_Sessions(t *testing.T) {
	t.Run("granted capability passes", func(t *testing.T) {
		rec := guard(t, activeIdentity(), rbac.ActionRead, rbac.SubjectFile)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing capability is forbidden", func(t *testing.T) {
		rec := guard(t, activeIdentity(), rbac.ActionManage, rbac.SubjectBilling)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("no identity fails closed as unauthenticated", func(t *testing.T) {
		rec := guard(t, nil, rbac.ActionRead, rbac.SubjectFile)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"unauthenticated"}`, rec.Body.String())
	})

	t.Run("suspended account is forbidden regardless of capability", func(t *testing.T) {
		identity := activeIdentity()
		identity.Status = domain.UserStatusSuspended
		rec := guard(t, identity, rbac.ActionRead, rbac.SubjectFile)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin passes everything", func(t *testing.T) {
		identity := activeIdentity()
		identity.Role = domain.RoleAdmin
		rec := guard(t, identity, rbac.ActionManage, rbac.SubjectBilling)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRequireCapability_TeamContext(t *testing.T) {
	t.Run("team role widens the set for team subjects", func(t *testing.T) {
		identity := activeIdentity()
		identity.TeamID = "team-1"
		identity.TeamRole = domain.TeamRoleViewer
		rec := guard(t, identity, rbac.ActionRead, rbac.SubjectTeam)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("viewer stays read only", func(t *testing.T) {
		identity := activeIdentity()
		identity.TeamID = "team-1"
		identity.TeamRole = domain.TeamRoleViewer
		rec := guard(t, identity, rbac.ActionUpdate, rbac.SubjectTeam)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("no team context, no team capabilities", func(t *testing.T) {
		rec := guard(t, activeIdentity(), rbac.ActionRead, rbac.SubjectTeam)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestRequireCapability_APIKeyScopes(t *testing.T) {
	keyIdentity := func(scopes ...string) *domain.Identity {
		identity := activeIdentity()
		identity.AuthKind = domain.AuthKindAPIKey
		identity.Scopes = scopes
		return identity
	}

	t.Run("capability and scope together pass", func(t *testing.T) {
		rec := guard(t, keyIdentity("files:read"), rbac.ActionRead, rbac.SubjectFile)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("capability without scope is forbidden", func(t *testing.T) {
		rec := guard(t, keyIdentity("files:read"), rbac.ActionDelete, rbac.SubjectFile)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("scope never exceeds the owner's capabilities", func(t *testing.T) {
		rec := guard(t, keyIdentity("billing:manage"), rbac.ActionManage, rbac.SubjectBilling)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("wildcard scope defers to capabilities alone", func(t *testing.T) {
		rec := guard(t, keyIdentity(domain.ScopeWildcard), rbac.ActionUpdate, rbac.SubjectAccount)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("no scopes at all", func(t *testing.T) {
		rec := guard(t, keyIdentity(), rbac.ActionRead, rbac.SubjectFile)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
