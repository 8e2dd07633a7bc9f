package domain

import "time"

// Session represents an active login session. Sessions live only in the
// cache store: the session id is an unrecoverable random capability
// reference, not a signed token, so there is nothing to persist durably.
type Session struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Role        Role       `json:"role"`
	Status      UserStatus `json:"status"`

	DeviceName string `json:"device_name,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`

	// TwoFactorPending is set when the password check passed but the user
	// has 2FA enabled and has not yet presented a code. No route requiring
	// full authentication accepts a pending session.
	TwoFactorPending  bool `json:"two_factor_pending"`
	TwoFactorVerified bool `json:"two_factor_verified"`
}

// Expired reports whether the session's absolute expiry has passed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
