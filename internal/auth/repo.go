package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/br7tech/billdesk/internal/platform/db"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (User, error)
	FindByToken(ctx context.Context, token string) (User, error)
	CreateUser(ctx context.Context, username, passwordHash string) (User, error)
	// ClaimSession stores token on the user unless another token is still live.
	ClaimSession(ctx context.Context, userID int64, token string, expires, now, idleCutoff time.Time) (bool, error)
	TouchSession(ctx context.Context, token string, at time.Time) error
	ClearSession(ctx context.Context, token string) error
	ClearExpired(ctx context.Context, now, idleCutoff time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, username, password_hash, COALESCE(session_token::text, ''), session_expires, last_seen_at, created_at`

func scanUser(row pgx.Row) (User, error) {
	var (
		u        User
		expires  *time.Time
		lastSeen *time.Time
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.SessionToken, &expires, &lastSeen, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	if expires != nil {
		u.SessionExpires = *expires
	}
	if lastSeen != nil {
		u.LastSeenAt = *lastSeen
	}
	return u, nil
}

// FindByUsername fetches a user by username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

// FindByToken fetches the user owning a server session token.
func (r *PGRepository) FindByToken(ctx context.Context, token string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE session_token::text = $1`, token)
	return scanUser(row)
}

// CreateUser inserts a new operator account.
func (r *PGRepository) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING `+userColumns, username, passwordHash)
	u, err := scanUser(row)
	if err != nil && db.IsUniqueViolation(err) {
		return User{}, ErrUsernameTaken
	}
	return u, err
}

// ClaimSession is a single conditional update so two concurrent logins cannot both win.
func (r *PGRepository) ClaimSession(ctx context.Context, userID int64, token string, expires, now, idleCutoff time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE users
SET session_token = $2::uuid, session_expires = $3, last_seen_at = $4
WHERE id = $1
  AND (session_token IS NULL
       OR session_expires IS NULL
       OR session_expires <= $4
       OR last_seen_at IS NULL
       OR last_seen_at <= $5)`, userID, token, expires, now, idleCutoff)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// TouchSession refreshes last_seen_at for a live token.
func (r *PGRepository) TouchSession(ctx context.Context, token string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_seen_at = $2 WHERE session_token::text = $1`, token, at)
	return err
}

// ClearSession removes a server token.
func (r *PGRepository) ClearSession(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `
UPDATE users SET session_token = NULL, session_expires = NULL, last_seen_at = NULL
WHERE session_token::text = $1`, token)
	return err
}

// ClearExpired drops tokens past their expiry or idle beyond the cutoff.
func (r *PGRepository) ClearExpired(ctx context.Context, now, idleCutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE users SET session_token = NULL, session_expires = NULL, last_seen_at = NULL
WHERE session_token IS NOT NULL
  AND (session_expires IS NULL OR session_expires <= $1 OR last_seen_at IS NULL OR last_seen_at <= $2)`, now, idleCutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
