// Package audit records security-relevant credential events as structured
// log entries: session revocations, key rotations, 2FA state changes,
// passkey counter regressions.
package audit

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// Event is one audit record.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component"`
	Action    string    `json:"action"`
	User      string    `json:"user,omitempty"`
	Target    string    `json:"target,omitempty"`
	Details   string    `json:"details,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

var auditLogger = log.Output(os.Stdout).With().Str("log", "audit").Logger()

// Log records an audit event. Failures to write are swallowed; auditing is
// never allowed to fail the guarded operation.
func Log(component, action, user, target, details string, success bool, err error) {
	event := Event{
		Timestamp: time.Now().UTC(),
		Component: component,
		Action:    action,
		User:      user,
		Target:    target,
		Details:   details,
		Success:   success,
	}
	if err != nil {
		event.Error = err.Error()
	}

	auditLogger.Log().
		Time("ts", event.Timestamp).
		Str("component", event.Component).
		Str("action", event.Action).
		Str("user", event.User).
		Str("target", event.Target).
		Str("details", event.Details).
		Bool("success", event.Success).
		Str("error", event.Error).
		Msg("audit")
}
