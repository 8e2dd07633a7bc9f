// Package middleware ties the auth core to echo: it extracts credentials
// from requests, resolves them to an identity, and enforces capability
// policy on routes.
package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/driftbox/authcore/domain"
	"github.com/driftbox/authcore/services"
)

// Credential headers. Session tokens travel in the session cookie, the
// session header or a Bearer Authorization header, checked in that order.
// API-key headers always win over a session.
const (
	HeaderAPIKey       = "X-Api-Key"
	HeaderAPISecret    = "X-Api-Secret"
	HeaderAPITimestamp = "X-Api-Timestamp"
	HeaderAPISignature = "X-Api-Signature"
	HeaderSessionToken = "X-Session-Token"
	HeaderTeamID       = "X-Team-Id"

	SessionCookieName = "dbx_session"
)

// maxSignedBodyBytes bounds how much request body the signed-mode verifier
// will buffer.
const maxSignedBodyBytes = 10 << 20

// IdentityMiddleware authenticates every request passing through it and
// attaches the resolved identity to the request context.
type IdentityMiddleware struct {
	resolver *services.IdentityResolver
	teams    *services.TeamService
}

func NewIdentityMiddleware(resolver *services.IdentityResolver, teams *services.TeamService) *IdentityMiddleware {
	return &IdentityMiddleware{resolver: resolver, teams: teams}
}

// Resolve is the authentication middleware. Requests with no credentials,
// or credentials that do not validate, are rejected here; authorization is
// RequireCapability's job.
func (m *IdentityMiddleware) Resolve(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		creds, err := extractCredentials(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed_request"})
		}

		identity, err := m.resolver.Resolve(c.Request().Context(), creds)
		if err != nil {
			return writeAuthError(c, err)
		}

		if teamID := c.Request().Header.Get(HeaderTeamID); teamID != "" {
			membership, err := m.teams.ResolveMembership(c.Request().Context(), teamID, identity.UserID)
			if err != nil {
				return writeAuthError(c, err)
			}
			identity.TeamID = membership.TeamID
			identity.TeamRole = membership.Role
		}

		ctx := domain.WithIdentity(c.Request().Context(), identity)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func extractCredentials(c echo.Context) (services.Credentials, error) {
	req := c.Request()
	creds := services.Credentials{
		APIKeyPublic:    req.Header.Get(HeaderAPIKey),
		APIKeySecret:    req.Header.Get(HeaderAPISecret),
		APIKeyTimestamp: req.Header.Get(HeaderAPITimestamp),
		APIKeySignature: req.Header.Get(HeaderAPISignature),
		CallerIP:        c.RealIP(),
	}

	// Signed mode covers the raw body; buffer it and hand the handler a
	// replacement reader.
	if creds.APIKeyPublic != "" && creds.APIKeySignature != "" && req.Body != nil {
		payload, err := io.ReadAll(io.LimitReader(req.Body, maxSignedBodyBytes))
		if err != nil {
			return services.Credentials{}, err
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(payload))
		creds.APIKeyPayload = payload
	}

	if creds.APIKeyPublic == "" {
		creds.SessionID = SessionIDFromRequest(c)
	}
	return creds, nil
}

// SessionIDFromRequest extracts the session id a request carries, if any:
// the session cookie, then the session header, then Bearer Authorization.
func SessionIDFromRequest(c echo.Context) string {
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if token := c.Request().Header.Get(HeaderSessionToken); token != "" {
		return token
	}
	if auth := c.Request().Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return ""
}

// writeAuthError maps the resolver's error kinds onto HTTP statuses. Every
// unauthenticated cause collapses to the same response so callers cannot
// probe which credential component was wrong.
func writeAuthError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrStepUpRequired):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "two_factor_required"})
	case errors.Is(err, domain.ErrUnauthenticated):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	case errors.Is(err, domain.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, domain.ErrRateLimited):
		return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "rate_limited"})
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("Identity resolution failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal"})
	}
}
