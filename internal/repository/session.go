package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"telco-rewards/internal/model"
)

// SessionRepository stores issued access tokens by hash.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	const query = `
		INSERT INTO user_sessions (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.pool.Exec(ctx, query, s.ID, s.UserID, s.TokenHash, s.ExpiresAt, s.CreatedAt); err != nil {
		return classify("create session", err)
	}
	return nil
}

// GetValid returns the session with the given token hash if it has not
// expired at now. Returns ErrSessionNotFound otherwise.
func (r *SessionRepository) GetValid(ctx context.Context, tokenHash string, now time.Time) (*model.Session, error) {
	const query = `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM user_sessions
		WHERE token_hash = $1 AND expires_at > $2
	`

	var s model.Session
	err := r.pool.QueryRow(ctx, query, tokenHash, now).Scan(
		&s.ID,
		&s.UserID,
		&s.TokenHash,
		&s.ExpiresAt,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, classify("get session", err)
	}
	return &s, nil
}

// Delete removes the session with the given token hash.
// Returns ErrSessionNotFound if there is none.
func (r *SessionRepository) Delete(ctx context.Context, tokenHash string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return classify("delete session", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteExpired removes every session that expired at or before now and
// returns how many were removed.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, classify("delete expired sessions", err)
	}
	return tag.RowsAffected(), nil
}
