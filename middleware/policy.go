package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/driftbox/authcore/domain"
	"github.com/driftbox/authcore/internal/auth/rbac"
)

// RequireCapability guards a route with one capability check. It must run
// after IdentityMiddleware.Resolve; a request with no identity in context is
// treated as unauthenticated, not as a server error, so a misordered route
// fails closed.
func RequireCapability(action rbac.Action, subject rbac.Subject) echo.MiddlewareFunc {
	capability := rbac.Capability{Action: action, Subject: subject}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, ok := domain.IdentityFromContext(c.Request().Context())
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
			}
			if identity.Status != domain.UserStatusActive {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			if !rbac.Effective(identity).Has(capability) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}

			// API keys carry an extra scope ceiling on top of the owner's
			// capabilities.
			if identity.AuthKind == domain.AuthKindAPIKey && !domain.ScopesAllow(identity.Scopes, rbac.ScopeFor(capability)) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
