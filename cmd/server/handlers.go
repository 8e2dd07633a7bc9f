package main

import (
	"errors"
	"net/http"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/driftbox/authcore/domain"
	"github.com/driftbox/authcore/internal/auth/rbac"
	"github.com/driftbox/authcore/middleware"
	"github.com/driftbox/authcore/services"
)

// API holds the handler dependencies for the reference server.
type API struct {
	users     domain.UserRepository
	sessions  *services.SessionService
	apiKeys   *services.APIKeyService
	twoFactor *services.TwoFactorService
	passkeys  *services.PasskeyService
}

// RegisterRoutes wires all routes. Session creation, step-up completion and
// passkey login run before identity resolution; everything else sits behind
// the identity middleware plus a capability check.
func (a *API) RegisterRoutes(e *echo.Echo, identity *middleware.IdentityMiddleware) {
	e.POST("/v1/sessions", a.CreateSession)
	e.POST("/v1/sessions/two-factor", a.CompleteTwoFactor)
	e.POST("/v1/passkeys/login/begin", a.BeginPasskeyLogin)
	e.POST("/v1/passkeys/login/finish", a.FinishPasskeyLogin)

	v1 := e.Group("/v1", identity.Resolve)

	v1.GET("/sessions", a.ListSessions, middleware.RequireCapability(rbac.ActionRead, rbac.SubjectSession))
	v1.DELETE("/sessions/current", a.RevokeCurrentSession, middleware.RequireCapability(rbac.ActionDelete, rbac.SubjectSession))
	v1.DELETE("/sessions/others", a.RevokeOtherSessions, middleware.RequireCapability(rbac.ActionDelete, rbac.SubjectSession))
	v1.DELETE("/sessions", a.RevokeAllSessions, middleware.RequireCapability(rbac.ActionDelete, rbac.SubjectSession))

	v1.GET("/api-keys", a.ListAPIKeys, middleware.RequireCapability(rbac.ActionRead, rbac.SubjectAPIKey))
	v1.POST("/api-keys", a.CreateAPIKey, middleware.RequireCapability(rbac.ActionCreate, rbac.SubjectAPIKey))
	v1.PUT("/api-keys/:id", a.UpdateAPIKey, middleware.RequireCapability(rbac.ActionUpdate, rbac.SubjectAPIKey))
	v1.POST("/api-keys/:id/rotate", a.RotateAPIKey, middleware.RequireCapability(rbac.ActionUpdate, rbac.SubjectAPIKey))
	v1.DELETE("/api-keys/:id", a.RevokeAPIKey, middleware.RequireCapability(rbac.ActionDelete, rbac.SubjectAPIKey))

	account := middleware.RequireCapability(rbac.ActionUpdate, rbac.SubjectAccount)
	v1.POST("/two-factor/setup", a.SetupTwoFactor, account)
	v1.POST("/two-factor/enable", a.EnableTwoFactor, account)
	v1.POST("/two-factor/disable", a.DisableTwoFactor, account)
	v1.POST("/two-factor/backup-codes", a.RegenerateBackupCodes, account)

	v1.POST("/passkeys/register/begin", a.BeginPasskeyRegistration, account)
	v1.POST("/passkeys/register/finish", a.FinishPasskeyRegistration, account)
	v1.GET("/passkeys", a.ListPasskeys, middleware.RequireCapability(rbac.ActionRead, rbac.SubjectAccount))
	v1.DELETE("/passkeys/:id", a.DeletePasskey, account)
}

func identityFrom(c echo.Context) (*domain.Identity, bool) {
	return domain.IdentityFromContext(c.Request().Context())
}

func writeServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrStepUpRequired):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "two_factor_required"})
	case errors.Is(err, domain.ErrUnauthenticated):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	case errors.Is(err, domain.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, domain.ErrRateLimited):
		return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "rate_limited"})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	case errors.Is(err, services.ErrTwoFactorNotReady),
		errors.Is(err, services.ErrTwoFactorAlreadyEnabled),
		errors.Is(err, services.ErrCeremonyExpired):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("Handler failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal"})
	}
}

func (a *API) setSessionCookie(c echo.Context, session *domain.Session) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		MaxAge:   int(services.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// CreateSession mints a session for a user whose primary credential the
// platform's login service already checked. It is the platform-internal
// login completion endpoint, not a password check.
func (a *API) CreateSession(c echo.Context) error {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}
	ctx := c.Request().Context()

	user, err := a.users.GetUserByID(ctx, req.UserID)
	if err != nil {
		return writeServiceError(c, err)
	}
	if user.Status != domain.UserStatusActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	requiresTwoFactor, err := a.twoFactor.IsEnabled(ctx, user.ID)
	if err != nil {
		return writeServiceError(c, err)
	}

	session, err := a.sessions.CreateSession(ctx, user, c.RealIP(), c.Request().UserAgent(), requiresTwoFactor)
	if err != nil {
		return writeServiceError(c, err)
	}
	a.setSessionCookie(c, session)
	return c.JSON(http.StatusCreated, echo.Map{
		"session":             session,
		"two_factor_required": session.TwoFactorPending,
	})
}

// CompleteTwoFactor upgrades a pending session after a valid TOTP or backup
// code. It runs outside identity resolution because pending sessions never
// resolve.
func (a *API) CompleteTwoFactor(c echo.Context) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code is required"})
	}

	sessionID := middleware.SessionIDFromRequest(c)
	if sessionID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	ctx := c.Request().Context()

	session, err := a.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
		}
		return writeServiceError(c, err)
	}
	if err := a.twoFactor.Verify(ctx, session.UserID, req.Code); err != nil {
		return writeServiceError(c, err)
	}
	if err := a.sessions.CompleteTwoFactor(ctx, sessionID); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (a *API) ListSessions(c echo.Context) error {
	identity, _ := identityFrom(c)
	sessions, err := a.sessions.ListSessions(c.Request().Context(), identity.UserID)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": sessions})
}

func (a *API) RevokeCurrentSession(c echo.Context) error {
	identity, _ := identityFrom(c)
	if identity.SessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "not a session credential"})
	}
	if err := a.sessions.Revoke(c.Request().Context(), identity.SessionID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *API) RevokeOtherSessions(c echo.Context) error {
	identity, _ := identityFrom(c)
	if identity.SessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "not a session credential"})
	}
	revoked, err := a.sessions.RevokeOthers(c.Request().Context(), identity.UserID, identity.SessionID)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"revoked": revoked})
}

func (a *API) RevokeAllSessions(c echo.Context) error {
	identity, _ := identityFrom(c)
	revoked, err := a.sessions.RevokeAll(c.Request().Context(), identity.UserID)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"revoked": revoked})
}

func (a *API) ListAPIKeys(c echo.Context) error {
	identity, _ := identityFrom(c)
	keys, err := a.apiKeys.ListAPIKeys(c.Request().Context(), identity.UserID)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"api_keys": keys})
}

func (a *API) CreateAPIKey(c echo.Context) error {
	identity, _ := identityFrom(c)
	var params services.CreateAPIKeyParams
	if err := c.Bind(&params); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	key, secret, err := a.apiKeys.CreateAPIKey(c.Request().Context(), identity.UserID, params)
	if err != nil {
		return writeServiceError(c, err)
	}
	// The secret appears in this response and never again.
	return c.JSON(http.StatusCreated, echo.Map{"api_key": key, "secret_key": secret})
}

func (a *API) UpdateAPIKey(c echo.Context) error {
	identity, _ := identityFrom(c)
	var params services.CreateAPIKeyParams
	if err := c.Bind(&params); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	key, err := a.apiKeys.UpdateAPIKey(c.Request().Context(), identity.UserID, c.Param("id"), params)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"api_key": key})
}

func (a *API) RotateAPIKey(c echo.Context) error {
	identity, _ := identityFrom(c)
	key, secret, err := a.apiKeys.RotateAPIKey(c.Request().Context(), identity.UserID, c.Param("id"))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"api_key": key, "secret_key": secret})
}

func (a *API) RevokeAPIKey(c echo.Context) error {
	identity, _ := identityFrom(c)
	if err := a.apiKeys.RevokeAPIKey(c.Request().Context(), identity.UserID, c.Param("id")); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *API) SetupTwoFactor(c echo.Context) error {
	identity, _ := identityFrom(c)
	user, err := a.users.GetUserByID(c.Request().Context(), identity.UserID)
	if err != nil {
		return writeServiceError(c, err)
	}
	setup, err := a.twoFactor.Setup(c.Request().Context(), user)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"secret":           setup.Secret,
		"provisioning_uri": setup.ProvisioningURI,
	})
}

func (a *API) EnableTwoFactor(c echo.Context) error {
	identity, _ := identityFrom(c)
	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code is required"})
	}
	backupCodes, err := a.twoFactor.Enable(c.Request().Context(), identity.UserID, req.Code)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"backup_codes": backupCodes})
}

func (a *API) DisableTwoFactor(c echo.Context) error {
	identity, _ := identityFrom(c)
	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code is required"})
	}
	if err := a.twoFactor.Disable(c.Request().Context(), identity.UserID, req.Code); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *API) RegenerateBackupCodes(c echo.Context) error {
	identity, _ := identityFrom(c)
	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code is required"})
	}
	backupCodes, err := a.twoFactor.RegenerateBackupCodes(c.Request().Context(), identity.UserID, req.Code)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"backup_codes": backupCodes})
}

func (a *API) BeginPasskeyRegistration(c echo.Context) error {
	identity, _ := identityFrom(c)
	user, err := a.users.GetUserByID(c.Request().Context(), identity.UserID)
	if err != nil {
		return writeServiceError(c, err)
	}
	options, err := a.passkeys.BeginRegistration(c.Request().Context(), user)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, options)
}

func (a *API) FinishPasskeyRegistration(c echo.Context) error {
	identity, _ := identityFrom(c)
	deviceName := c.QueryParam("device_name")

	response, err := protocol.ParseCredentialCreationResponseBody(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid webauthn response"})
	}
	user, err := a.users.GetUserByID(c.Request().Context(), identity.UserID)
	if err != nil {
		return writeServiceError(c, err)
	}
	credential, err := a.passkeys.FinishRegistration(c.Request().Context(), user, response, deviceName)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"passkey": credential})
}

func (a *API) BeginPasskeyLogin(c echo.Context) error {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}
	ctx := c.Request().Context()

	user, err := a.users.GetUserByID(ctx, req.UserID)
	if err != nil {
		// No user and no credentials look the same from outside.
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
		}
		return writeServiceError(c, err)
	}
	options, err := a.passkeys.BeginLogin(ctx, user)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, options)
}

// FinishPasskeyLogin completes a passkey assertion and mints a full session.
// A passkey is already a second factor, so the session never starts pending.
func (a *API) FinishPasskeyLogin(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}
	ctx := c.Request().Context()

	response, err := protocol.ParseCredentialRequestResponseBody(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid webauthn response"})
	}
	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		return writeServiceError(c, err)
	}
	if user.Status != domain.UserStatusActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	if _, err := a.passkeys.FinishLogin(ctx, user, response); err != nil {
		return writeServiceError(c, err)
	}

	session, err := a.sessions.CreateSession(ctx, user, c.RealIP(), c.Request().UserAgent(), false)
	if err != nil {
		return writeServiceError(c, err)
	}
	a.setSessionCookie(c, session)
	return c.JSON(http.StatusOK, echo.Map{"session": session})
}

func (a *API) ListPasskeys(c echo.Context) error {
	identity, _ := identityFrom(c)
	passkeys, err := a.passkeys.ListPasskeys(c.Request().Context(), identity.UserID)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"passkeys": passkeys})
}

func (a *API) DeletePasskey(c echo.Context) error {
	identity, _ := identityFrom(c)
	if err := a.passkeys.DeletePasskey(c.Request().Context(), identity.UserID, c.Param("id")); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
