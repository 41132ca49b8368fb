package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"telco-rewards/internal/ledger"
	"telco-rewards/internal/model"
)

// querier is the subset of pgxpool.Pool and pgx.Tx the repositories use.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, name, email, password_hash, avatar, tokens, xp, level, streak,
	last_login, language, tts_enabled, telegram_id, version, created_at, updated_at`

// UserRepository stores user aggregates in PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.Avatar,
		&u.Tokens,
		&u.XP,
		&u.Level,
		&u.Streak,
		&u.LastLogin,
		&u.Language,
		&u.TTSEnabled,
		&u.TelegramID,
		&u.Version,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user. A positive opening balance is journaled as the
// welcome bonus in the same transaction.
// Returns ErrDuplicateEmail if the email is taken.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const query = `
			INSERT INTO users (id, name, email, password_hash, avatar, tokens, xp, level, streak,
				last_login, language, tts_enabled, telegram_id, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		`
		_, err := tx.Exec(ctx, query,
			u.ID, u.Name, u.Email, u.PasswordHash, u.Avatar,
			u.Tokens, u.XP, ledger.DeriveLevel(u.XP), u.Streak,
			u.LastLogin, u.Language, u.TTSEnabled, u.TelegramID, u.Version, u.CreatedAt,
		)
		if err != nil {
			return err
		}

		if u.Tokens > 0 {
			return insertEntry(ctx, tx, &model.LedgerEntry{
				UserID:    u.ID,
				Tokens:    u.Tokens,
				Kind:      model.EntryWelcome,
				CreatedAt: u.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return classify("create user", err)
	}
	return nil
}

// GetByID retrieves the full aggregate of a user.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getBy(ctx, "id", id)
}

// GetByEmail retrieves a user by email.
// Returns ErrUserNotFound if no user has that email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getBy(ctx, "email", email)
}

// GetByTelegramID retrieves the user linked to a Telegram account.
// Returns ErrUserNotFound if the account is not linked.
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return r.getBy(ctx, "telegram_id", telegramID)
}

func (r *UserRepository) getBy(ctx context.Context, column string, value any) (*model.User, error) {
	u, err := loadUser(ctx, r.pool, column, value, false)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, classify("get user", err)
	}
	return u, nil
}

// loadUser reads the user row selected by column and its child records.
// column is always one of the fixed names used above.
func loadUser(ctx context.Context, q querier, column string, value any, forUpdate bool) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	u, err := scanUser(q.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if err := loadChildren(ctx, q, u); err != nil {
		return nil, err
	}
	return u, nil
}

func loadChildren(ctx context.Context, q querier, u *model.User) error {
	rows, err := q.Query(ctx, `
		SELECT activity_id, tokens_earned, xp_earned, completed_at
		FROM user_activities
		WHERE user_id = $1
		ORDER BY completed_at, activity_id
	`, u.ID)
	if err != nil {
		return err
	}
	u.CompletedActivities, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.CompletedActivity, error) {
		var a model.CompletedActivity
		err := row.Scan(&a.ActivityID, &a.TokensEarned, &a.XPEarned, &a.CompletedAt)
		return a, err
	})
	if err != nil {
		return err
	}

	rows, err = q.Query(ctx, `
		SELECT badge_id, badge_name, badge_description, badge_icon, badge_rarity, earned_at
		FROM user_badges
		WHERE user_id = $1
		ORDER BY earned_at, badge_id
	`, u.ID)
	if err != nil {
		return err
	}
	u.Badges, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Badge, error) {
		var b model.Badge
		err := row.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &b.Rarity, &b.EarnedAt)
		return b, err
	})
	if err != nil {
		return err
	}

	rows, err = q.Query(ctx, `
		SELECT perk_id, perk_name, cost, redeemed_at
		FROM user_perks
		WHERE user_id = $1
		ORDER BY id
	`, u.ID)
	if err != nil {
		return err
	}
	u.RedeemedPerks, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.PerkRedemption, error) {
		var p model.PerkRedemption
		err := row.Scan(&p.PerkID, &p.PerkName, &p.Cost, &p.RedeemedAt)
		return p, err
	})
	return err
}

// ApplyDelta applies d to the user inside one transaction that holds the
// user row lock. The delta must have been computed against the stored
// version; otherwise ErrVersionConflict is returned and nothing is written.
// Ledger validation errors from re-checking the delta pass through as-is.
func (r *UserRepository) ApplyDelta(ctx context.Context, id string, d ledger.Delta) (*model.User, error) {
	var next *model.User

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		cur, err := loadUser(ctx, tx, "id", id, true)
		if err != nil {
			return err
		}
		if cur.Version != d.BaseVersion {
			return ErrVersionConflict
		}

		next, err = ledger.Apply(cur, d)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE users
			SET tokens = $3, xp = $4, level = $5, streak = $6, last_login = $7,
				version = $8, updated_at = NOW()
			WHERE id = $1 AND version = $2
		`, id, cur.Version, next.Tokens, next.XP, next.Level, next.Streak, next.LastLogin, next.Version)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionConflict
		}

		if a := d.Activity; a != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO user_activities (user_id, activity_id, tokens_earned, xp_earned, completed_at)
				VALUES ($1, $2, $3, $4, $5)
			`, id, a.ActivityID, a.TokensEarned, a.XPEarned, a.CompletedAt)
			if err != nil {
				return err
			}
		}
		if b := d.Badge; b != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO user_badges (user_id, badge_id, badge_name, badge_description, badge_icon, badge_rarity, earned_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, id, b.ID, b.Name, b.Description, b.Icon, b.Rarity, b.EarnedAt)
			if err != nil {
				return err
			}
		}
		if p := d.Redemption; p != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO user_perks (user_id, perk_id, perk_name, cost, redeemed_at)
				VALUES ($1, $2, $3, $4, $5)
			`, id, p.PerkID, p.PerkName, p.Cost, p.RedeemedAt)
			if err != nil {
				return err
			}
		}

		if d.MovesBalance() {
			return insertEntry(ctx, tx, &model.LedgerEntry{
				UserID:    id,
				Tokens:    d.Tokens,
				XP:        d.XP,
				Kind:      d.JournalKind(),
				Reference: d.Reference(),
				CreatedAt: entryTime(d, next),
			})
		}
		return nil
	})
	if err != nil {
		if passThrough(err) {
			return nil, err
		}
		return nil, classify("apply delta", err)
	}
	return next, nil
}

// passThrough reports whether err already carries a domain meaning and must
// not be reclassified as a storage error.
func passThrough(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ledger.ErrValidation)
}

// UpdateProfile changes the non-progression fields set in upd and returns
// the updated user. Progression fields and the version are left untouched.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error) {
	const query = `
		UPDATE users
		SET name = COALESCE($2, name),
			email = COALESCE($3, email),
			avatar = COALESCE($4, avatar),
			language = COALESCE($5, language),
			tts_enabled = COALESCE($6, tts_enabled),
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, upd.Name, upd.Email, upd.Avatar, upd.Language, upd.TTSEnabled)
	if err != nil {
		return nil, classify("update profile", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrUserNotFound
	}
	return r.GetByID(ctx, id)
}

// LinkTelegram binds a Telegram account to the user.
// Returns ErrTelegramLinked if another user already holds that account.
func (r *UserRepository) LinkTelegram(ctx context.Context, id string, telegramID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET telegram_id = $2, updated_at = NOW() WHERE id = $1
	`, id, telegramID)
	if err != nil {
		return classify("link telegram", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes the user. Activities, badges, perks, sessions and ledger
// entries go with it through ON DELETE CASCADE in the same statement.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return classify("delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
