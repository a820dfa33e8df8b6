package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/br7tech/billdesk/internal/platform/httpx"
)

// Options configures session lifetimes.
type Options struct {
	TTL         time.Duration
	IdleTimeout time.Duration
}

// Service wraps authentication and session rules.
type Service struct {
	repo   Repository
	guard  Guard
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, opts Options, logger *slog.Logger) *Service {
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	if opts.IdleTimeout <= 0 || opts.IdleTimeout > opts.TTL {
		opts.IdleTimeout = opts.TTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		guard:  Guard{IdleTimeout: opts.IdleTimeout},
		ttl:    opts.TTL,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Guard exposes the idle/expiry evaluator.
func (s *Service) Guard() Guard {
	return s.guard
}

// Login checks credentials and claims the single server session of the user.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("auth: find user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	now := s.now()
	token := uuid.NewString()
	expires := now.Add(s.ttl)
	claimed, err := s.repo.ClaimSession(ctx, user.ID, token, expires, now, s.guard.IdleCutoff(now))
	if err != nil {
		return Session{}, fmt.Errorf("auth: claim session: %w", err)
	}
	if !claimed {
		return Session{}, ErrAlreadyLoggedIn
	}
	s.logger.Info("user logged in", slog.Int64("user_id", user.ID))
	return Session{Token: token, UserID: user.ID, Username: user.Username, ExpiresAt: expires}, nil
}

// Validate returns the owner of token while the session is active. An expired
// or idle token is cleared server side before ErrSessionExpired is returned.
func (s *Service) Validate(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrLoginRequired
	}
	user, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrSessionExpired
		}
		return User{}, fmt.Errorf("auth: find session: %w", err)
	}
	if verdict := s.guard.Evaluate(s.now(), user.LastSeenAt, user.SessionExpires); verdict != Active {
		if err := s.repo.ClearSession(ctx, token); err != nil {
			s.logger.Warn("clear expired session", slog.Any("error", err))
		}
		s.logger.Info("session ended", slog.Int64("user_id", user.ID), slog.String("verdict", verdict.String()))
		return User{}, ErrSessionExpired
	}
	return user, nil
}

// Touch records a qualifying interaction for token.
func (s *Service) Touch(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.repo.TouchSession(ctx, token, s.now())
}

// Logout clears the server token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.repo.ClearSession(ctx, token); err != nil {
		return fmt.Errorf("auth: logout: %w", err)
	}
	return nil
}

// SweepExpired clears every token that is past expiry or idle.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	now := s.now()
	cleared, err := s.repo.ClearExpired(ctx, now, s.guard.IdleCutoff(now))
	if err != nil {
		return 0, fmt.Errorf("auth: sweep sessions: %w", err)
	}
	return cleared, nil
}

// CreateUser provisions an operator with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, fmt.Errorf("%w: username required", httpx.ErrValidation)
	}
	if len(password) < 8 {
		return User{}, fmt.Errorf("%w: password must be at least 8 characters", httpx.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("auth: hash password: %w", err)
	}
	return s.repo.CreateUser(ctx, username, string(hash))
}
