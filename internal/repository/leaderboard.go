package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"telco-rewards/internal/model"
)

// leaderboardOrder is the ranking used everywhere: richest first, then
// highest level, then whoever joined earlier.
const leaderboardOrder = `u.tokens DESC, u.level DESC, u.created_at ASC, u.id ASC`

// LeaderboardRepository reads user standings.
type LeaderboardRepository struct {
	pool *pgxpool.Pool
}

// NewLeaderboardRepository creates a new LeaderboardRepository instance.
func NewLeaderboardRepository(pool *pgxpool.Pool) *LeaderboardRepository {
	return &LeaderboardRepository{pool: pool}
}

// Page returns limit standings starting after offset.
func (r *LeaderboardRepository) Page(ctx context.Context, limit, offset int) ([]*model.LeaderboardEntry, error) {
	query := `
		SELECT ROW_NUMBER() OVER (ORDER BY ` + leaderboardOrder + `) AS position,
			u.id, u.name, u.avatar, u.tokens, u.level, u.streak,
			(SELECT COUNT(*) FROM user_badges b WHERE b.user_id = u.id) AS badges_count
		FROM users u
		ORDER BY position
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, classify("get leaderboard", err)
	}
	defer rows.Close()

	var entries []*model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		err := rows.Scan(
			&e.Position,
			&e.UserID,
			&e.Name,
			&e.Avatar,
			&e.Tokens,
			&e.Level,
			&e.Streak,
			&e.BadgeCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("iterate leaderboard", err)
	}

	return entries, nil
}

// Count returns the number of ranked users.
func (r *LeaderboardRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, classify("count users", err)
	}
	return n, nil
}

// Position returns the 1-based rank of a user.
// Returns ErrUserNotFound if the user does not exist.
func (r *LeaderboardRepository) Position(ctx context.Context, userID string) (int, error) {
	query := `
		SELECT position FROM (
			SELECT u.id, ROW_NUMBER() OVER (ORDER BY ` + leaderboardOrder + `) AS position
			FROM users u
		) ranked
		WHERE id = $1
	`

	var pos int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&pos); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, classify("get leaderboard position", err)
	}
	return pos, nil
}
