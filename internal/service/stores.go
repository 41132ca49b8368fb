// Package service provides business logic implementations.
package service

import (
	"context"
	"time"

	"telco-rewards/internal/ledger"
	"telco-rewards/internal/model"
	"telco-rewards/internal/repository"
)

// UserStore is the durable home of user aggregates.
// repository.UserRepository and repository.MemoryUserStore implement it.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	ApplyDelta(ctx context.Context, id string, d ledger.Delta) (*model.User, error)
	UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error)
	LinkTelegram(ctx context.Context, id string, telegramID int64) error
	Delete(ctx context.Context, id string) error
}

// SessionStore keeps issued access tokens by hash.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	GetValid(ctx context.Context, tokenHash string, now time.Time) (*model.Session, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// JournalStore reads the token/XP journal.
type JournalStore interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.LedgerEntry, error)
	TopEarnersSince(ctx context.Context, since time.Time, limit int) ([]*model.EarnerRank, error)
}

// LeaderboardStore reads user standings.
type LeaderboardStore interface {
	Page(ctx context.Context, limit, offset int) ([]*model.LeaderboardEntry, error)
	Count(ctx context.Context) (int, error)
	Position(ctx context.Context, userID string) (int, error)
}

// Stores bundles one backend's stores.
type Stores struct {
	Users       UserStore
	Sessions    SessionStore
	Journal     JournalStore
	Leaderboard LeaderboardStore
}

// MemoryStores returns stores backed by a fresh in-memory dataset.
func MemoryStores() Stores {
	m := repository.NewMemory()
	return Stores{
		Users:       m.Users,
		Sessions:    m.Sessions,
		Journal:     m.Journal,
		Leaderboard: m.Leaderboard,
	}
}
