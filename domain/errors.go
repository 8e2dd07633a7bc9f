package domain

import "errors"

// The four caller-visible failure kinds of the auth core. Every error
// returned across the services boundary matches exactly one of these via
// errors.Is, or is an infrastructure error and matches none.
var (
	// ErrUnauthenticated means no usable or valid credential was presented.
	// It deliberately does not distinguish unknown from revoked or expired
	// credentials, so callers cannot enumerate key material.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrStepUpRequired means the primary credential was accepted but the
	// session still awaits its second factor.
	ErrStepUpRequired = errors.New("two-factor verification required")

	// ErrForbidden means the caller is authenticated but not allowed:
	// missing capability, suspended account, or inactive team.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited means an API key exceeded its per-minute budget.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrNotFound is the terminal "record absent" outcome repositories and
	// the session store report. It is a valid result, not an infrastructure
	// failure; resolvers translate it into ErrUnauthenticated or
	// ErrForbidden as appropriate.
	ErrNotFound = errors.New("not found")
)
