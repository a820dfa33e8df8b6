package auth

import (
	"fmt"
	"time"

	"github.com/br7tech/billdesk/internal/platform/httpx"
)

// User represents a shop operator account.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	SessionToken   string    `json:"-"`
	SessionExpires time.Time `json:"-"`
	LastSeenAt     time.Time `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// HasSession reports whether a server token is stored for the user.
func (u User) HasSession() bool {
	return u.SessionToken != ""
}

// Session is what a successful login hands back to the caller.
type Session struct {
	Token     string    `json:"-"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

var (
	// ErrInvalidCredentials covers unknown users and password mismatches alike.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", httpx.ErrUnauthorized)
	// ErrAlreadyLoggedIn is returned while another unexpired session holds the account.
	ErrAlreadyLoggedIn = fmt.Errorf("%w: already logged in elsewhere", httpx.ErrConflict)
	// ErrSessionExpired is returned for unknown, idle or timed out tokens.
	ErrSessionExpired = fmt.Errorf("%w: session expired", httpx.ErrUnauthorized)
	// ErrLoginRequired is returned when a request carries no session at all.
	ErrLoginRequired = fmt.Errorf("%w: login required", httpx.ErrUnauthorized)
	// ErrUserNotFound is returned by repositories when no row matches.
	ErrUserNotFound = fmt.Errorf("%w: user", httpx.ErrNotFound)
	// ErrUsernameTaken is returned when provisioning a duplicate username.
	ErrUsernameTaken = fmt.Errorf("%w: username already exists", httpx.ErrDuplicate)
)
