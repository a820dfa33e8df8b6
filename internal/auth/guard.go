package auth

import "time"

// State is the login state of an operator.
type State string

const (
	StateLoggedOut State = "logged_out"
	StateLoggedIn  State = "logged_in"
)

// Verdict is the outcome of evaluating a session at a point in time.
type Verdict int

const (
	Active Verdict = iota
	IdleExpired
	TokenExpired
)

func (v Verdict) String() string {
	switch v {
	case Active:
		return "active"
	case IdleExpired:
		return "idle_expired"
	case TokenExpired:
		return "token_expired"
	default:
		return "unknown"
	}
}

// State maps the verdict onto the two login states.
func (v Verdict) State() State {
	if v == Active {
		return StateLoggedIn
	}
	return StateLoggedOut
}

// Guard decides whether a session is still usable. It holds no clock of its own.
type Guard struct {
	IdleTimeout time.Duration
}

// Evaluate checks the absolute expiry first, then the idle window.
func (g Guard) Evaluate(now, lastActivity, expiresAt time.Time) Verdict {
	if expiresAt.IsZero() || !now.Before(expiresAt) {
		return TokenExpired
	}
	if lastActivity.IsZero() {
		return IdleExpired
	}
	if g.IdleTimeout > 0 && now.Sub(lastActivity) >= g.IdleTimeout {
		return IdleExpired
	}
	return Active
}

// IdleCutoff is the oldest last-activity instant still considered active at now.
func (g Guard) IdleCutoff(now time.Time) time.Time {
	return now.Add(-g.IdleTimeout)
}
