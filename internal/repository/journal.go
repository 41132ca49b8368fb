package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"telco-rewards/internal/ledger"
	"telco-rewards/internal/model"
)

// JournalRepository reads the token/XP journal. Entries are written by
// UserRepository inside the transaction that moves the balance.
type JournalRepository struct {
	pool *pgxpool.Pool
}

// NewJournalRepository creates a new JournalRepository instance.
func NewJournalRepository(pool *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{pool: pool}
}

func insertEntry(ctx context.Context, q querier, e *model.LedgerEntry) error {
	const query = `
		INSERT INTO ledger_entries (user_id, tokens, xp, kind, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	return q.QueryRow(ctx, query, e.UserID, e.Tokens, e.XP, e.Kind, e.Reference, e.CreatedAt).Scan(&e.ID)
}

// entryTime picks the event timestamp carried by the delta.
func entryTime(d ledger.Delta, u *model.User) time.Time {
	switch {
	case d.Activity != nil:
		return d.Activity.CompletedAt
	case d.Redemption != nil:
		return d.Redemption.RedeemedAt
	case d.Badge != nil:
		return d.Badge.EarnedAt
	}
	return u.LastLogin
}

// ListByUser retrieves a user's journal, newest first.
func (r *JournalRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.LedgerEntry, error) {
	const query = `
		SELECT id, user_id, tokens, xp, kind, reference, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, classify("list ledger entries", err)
	}
	defer rows.Close()

	var entries []*model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.Tokens,
			&e.XP,
			&e.Kind,
			&e.Reference,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("iterate ledger entries", err)
	}

	return entries, nil
}

// TopEarnersSince ranks users by tokens earned from activities since the
// given time, highest first.
func (r *JournalRepository) TopEarnersSince(ctx context.Context, since time.Time, limit int) ([]*model.EarnerRank, error) {
	const query = `
		SELECT e.user_id, u.name, SUM(e.tokens) AS earned
		FROM ledger_entries e
		JOIN users u ON e.user_id = u.id
		WHERE e.kind = $1
		  AND e.created_at >= $2
		GROUP BY e.user_id, u.name
		HAVING SUM(e.tokens) > 0
		ORDER BY earned DESC, e.user_id
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, model.EntryActivity, since, limit)
	if err != nil {
		return nil, classify("get top earners", err)
	}
	defer rows.Close()

	var ranks []*model.EarnerRank
	for rows.Next() {
		var rank model.EarnerRank
		if err := rows.Scan(&rank.UserID, &rank.Name, &rank.Earned); err != nil {
			return nil, fmt.Errorf("failed to scan earner: %w", err)
		}
		ranks = append(ranks, &rank)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("iterate top earners", err)
	}

	return ranks, nil
}
