package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftbox/authcore/cache"
	"github.com/driftbox/authcore/domain"
	"github.com/driftbox/authcore/internal/audit"
	"github.com/driftbox/authcore/internal/auth"
	"github.com/driftbox/authcore/internal/metrics"
)

const (
	// SessionTTL is the sliding session window: every accepted Touch
	// extends expiry by this much.
	SessionTTL = 7 * 24 * time.Hour

	// touchInterval debounces activity writes. Touches arriving sooner
	// than this after the last recorded activity are skipped; the debounce
	// bounds write amplification, it is not a correctness mechanism.
	touchInterval = 60 * time.Second

	sessionIDBytes = 32
)

// SessionService owns the session lifecycle. Sessions live entirely in the
// cache store: the record itself, plus a per-user index set used for bulk
// revocation.
type SessionService struct {
	store cache.Store
}

// NewSessionService creates a SessionService on the given cache store.
func NewSessionService(store cache.Store) *SessionService {
	return &SessionService{store: store}
}

func sessionKey(id string) string {
	return "session:" + cache.HashKey(id)
}

func userSessionsKey(userID string) string {
	return "user_sessions:" + userID
}

// CreateSession mints a session for an already-authenticated user. The id
// is an unrecoverable random capability reference; the identity fields are
// snapshotted so resolution needs no user-store read. requiresTwoFactor
// marks the session pending until CompleteTwoFactor.
func (s *SessionService) CreateSession(ctx context.Context, user *domain.User, ip, userAgent string, requiresTwoFactor bool) (*domain.Session, error) {
	id, err := auth.NewToken(sessionIDBytes)
	if err != nil {
		return nil, fmt.Errorf("mint session id: %w", err)
	}

	now := time.Now().UTC()
	session := &domain.Session{
		ID:                id,
		UserID:            user.ID,
		Email:             user.Email,
		DisplayName:       user.DisplayName,
		Role:              user.Role,
		Status:            user.Status,
		DeviceName:        parseDeviceName(userAgent),
		UserAgent:         userAgent,
		IPAddress:         ip,
		CreatedAt:         now,
		ExpiresAt:         now.Add(SessionTTL),
		LastActivityAt:    now,
		TwoFactorPending:  requiresTwoFactor,
		TwoFactorVerified: !requiresTwoFactor,
	}

	if err := s.store.SetJSON(ctx, sessionKey(id), session, SessionTTL); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	// Index entry carries the same TTL so it cannot outlive its sessions
	// by more than one window.
	if err := s.store.AddToSet(ctx, userSessionsKey(user.ID), id, SessionTTL); err != nil {
		return nil, fmt.Errorf("index session: %w", err)
	}

	metrics.SessionsCreatedTotal.Inc()
	log.Debug().Str("userID", user.ID).Str("device", session.DeviceName).Msg("Session created")
	return session, nil
}

// GetSession returns the session for id, or domain.ErrNotFound when the id
// is unknown or the session has expired. Expiry is lazy and self-healing:
// an expired record found on read is deleted on the spot.
func (s *SessionService) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var session domain.Session
	found, err := s.store.GetJSON(ctx, sessionKey(id), &session)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !found {
		return nil, domain.ErrNotFound
	}
	if session.Expired(time.Now().UTC()) {
		s.dropSession(ctx, &session)
		return nil, domain.ErrNotFound
	}
	return &session, nil
}

// Touch records activity on the session and slides its expiry window.
// Writes are debounced: a touch within touchInterval of the last recorded
// activity is a no-op.
func (s *SessionService) Touch(ctx context.Context, session *domain.Session) error {
	now := time.Now().UTC()
	if now.Sub(session.LastActivityAt) < touchInterval {
		return nil
	}
	session.LastActivityAt = now
	session.ExpiresAt = now.Add(SessionTTL)
	if err := s.store.SetJSON(ctx, sessionKey(session.ID), session, SessionTTL); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// CompleteTwoFactor marks the session fully authenticated. Idempotent:
// completing an already-verified session succeeds without a write.
func (s *SessionService) CompleteTwoFactor(ctx context.Context, id string) error {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if !session.TwoFactorPending && session.TwoFactorVerified {
		return nil
	}
	session.TwoFactorPending = false
	session.TwoFactorVerified = true
	remaining := time.Until(session.ExpiresAt)
	if err := s.store.SetJSON(ctx, sessionKey(id), session, remaining); err != nil {
		return fmt.Errorf("complete two-factor: %w", err)
	}
	return nil
}

// Revoke deletes a single session and its index entry. Revoking an unknown
// session is not an error.
func (s *SessionService) Revoke(ctx context.Context, id string) error {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	s.dropSession(ctx, session)
	metrics.SessionsRevokedTotal.Inc()
	audit.Log("SessionService", "Revoke", session.UserID, session.ID, "Session revoked", true, nil)
	return nil
}

// RevokeAll deletes every session of the user, including the one issuing
// the call. Returns the number of sessions removed.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) (int, error) {
	return s.revokeMatching(ctx, userID, "")
}

// RevokeOthers deletes every session of the user except keepID.
func (s *SessionService) RevokeOthers(ctx context.Context, userID, keepID string) (int, error) {
	return s.revokeMatching(ctx, userID, keepID)
}

func (s *SessionService) revokeMatching(ctx context.Context, userID, keepID string) (int, error) {
	ids, err := s.store.SetMembers(ctx, userSessionsKey(userID))
	if err != nil {
		return 0, fmt.Errorf("scan user sessions: %w", err)
	}

	revoked := 0
	for _, id := range ids {
		if id == keepID {
			continue
		}
		if err := s.store.Delete(ctx, sessionKey(id)); err != nil {
			return revoked, fmt.Errorf("delete session: %w", err)
		}
		if err := s.store.RemoveFromSet(ctx, userSessionsKey(userID), id); err != nil {
			log.Warn().Err(err).Str("userID", userID).Msg("Failed to prune session index entry")
		}
		revoked++
		metrics.SessionsRevokedTotal.Inc()
	}
	audit.Log("SessionService", "RevokeBulk", userID, "",
		fmt.Sprintf("%d sessions revoked", revoked), true, nil)
	return revoked, nil
}

// ListSessions returns the user's live sessions. Index entries whose
// session has expired are pruned as they are encountered.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	ids, err := s.store.SetMembers(ctx, userSessionsKey(userID))
	if err != nil {
		return nil, fmt.Errorf("scan user sessions: %w", err)
	}

	sessions := make([]*domain.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.GetSession(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				_ = s.store.RemoveFromSet(ctx, userSessionsKey(userID), id)
				continue
			}
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (s *SessionService) dropSession(ctx context.Context, session *domain.Session) {
	if err := s.store.Delete(ctx, sessionKey(session.ID)); err != nil {
		log.Warn().Err(err).Str("userID", session.UserID).Msg("Failed to delete session record")
	}
	if err := s.store.RemoveFromSet(ctx, userSessionsKey(session.UserID), session.ID); err != nil {
		log.Warn().Err(err).Str("userID", session.UserID).Msg("Failed to prune session index entry")
	}
}

// parseDeviceName reduces a User-Agent string to a coarse human-readable
// label for session listings.
func parseDeviceName(userAgent string) string {
	ua := strings.ToLower(userAgent)

	browser := "Unknown browser"
	switch {
	case strings.Contains(ua, "edg/"):
		browser = "Edge"
	case strings.Contains(ua, "opr/"), strings.Contains(ua, "opera"):
		browser = "Opera"
	case strings.Contains(ua, "chrome/"):
		browser = "Chrome"
	case strings.Contains(ua, "safari/") && strings.Contains(ua, "version/"):
		browser = "Safari"
	case strings.Contains(ua, "firefox/"):
		browser = "Firefox"
	case strings.Contains(ua, "curl/"):
		browser = "curl"
	}

	os := "unknown OS"
	switch {
	case strings.Contains(ua, "windows"):
		os = "Windows"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		os = "iOS"
	case strings.Contains(ua, "mac os"):
		os = "macOS"
	case strings.Contains(ua, "android"):
		os = "Android"
	case strings.Contains(ua, "linux"):
		os = "Linux"
	}

	return browser + " on " + os
}
