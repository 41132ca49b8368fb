package repository

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"telco-rewards/internal/ledger"
	"telco-rewards/internal/model"
	"telco-rewards/internal/pkg/db"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

// setupTestDB creates a PostgreSQL container with the schema applied.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx, pool))
	// Running twice must be harmless.
	require.NoError(t, db.Migrate(ctx, pool))

	t.Cleanup(func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	})
	return pool
}

// The interfaces below are the contract both backends are tested against.

type userStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	ApplyDelta(ctx context.Context, id string, d ledger.Delta) (*model.User, error)
	UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error)
	LinkTelegram(ctx context.Context, id string, telegramID int64) error
	Delete(ctx context.Context, id string) error
}

type sessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	GetValid(ctx context.Context, tokenHash string, now time.Time) (*model.Session, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type journalStore interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.LedgerEntry, error)
	TopEarnersSince(ctx context.Context, since time.Time, limit int) ([]*model.EarnerRank, error)
}

type leaderboardStore interface {
	Page(ctx context.Context, limit, offset int) ([]*model.LeaderboardEntry, error)
	Count(ctx context.Context) (int, error)
	Position(ctx context.Context, userID string) (int, error)
}

type backend struct {
	users       userStore
	sessions    sessionStore
	journal     journalStore
	leaderboard leaderboardStore
}

func backends(t *testing.T) map[string]func(t *testing.T) backend {
	return map[string]func(t *testing.T) backend{
		"memory": func(t *testing.T) backend {
			m := NewMemory()
			return backend{m.Users, m.Sessions, m.Journal, m.Leaderboard}
		},
		"postgres": func(t *testing.T) backend {
			pool := setupTestDB(t)
			return backend{
				NewUserRepository(pool),
				NewSessionRepository(pool),
				NewJournalRepository(pool),
				NewLeaderboardRepository(pool),
			}
		},
	}
}

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestUser(id, email string, tokens int64) *model.User {
	return &model.User{
		ID:           id,
		Name:         "User " + id,
		Email:        email,
		PasswordHash: "hash",
		Tokens:       tokens,
		Level:        1,
		Streak:       1,
		LastLogin:    baseTime,
		Language:     "en",
		CreatedAt:    baseTime,
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b backend)) {
	for name, setup := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, setup(t))
		})
	}
}

func TestUserStore_CreateAndGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		require.NoError(t, b.users.Create(ctx, newTestUser("u1", "a@example.com", 100)))

		u, err := b.users.GetByID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "a@example.com", u.Email)
		assert.Equal(t, int64(100), u.Tokens)
		assert.Equal(t, 1, u.Level)
		assert.Equal(t, 1, u.Streak)
		assert.Empty(t, u.CompletedActivities)

		byEmail, err := b.users.GetByEmail(ctx, "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, "u1", byEmail.ID)

		_, err = b.users.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrUserNotFound)
		_, err = b.users.GetByEmail(ctx, "missing@example.com")
		assert.ErrorIs(t, err, ErrUserNotFound)

		err = b.users.Create(ctx, newTestUser("u2", "a@example.com", 100))
		assert.ErrorIs(t, err, ErrDuplicateEmail)

		entries, err := b.journal.ListByUser(ctx, "u1", 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, model.EntryWelcome, entries[0].Kind)
		assert.Equal(t, int64(100), entries[0].Tokens)
	})
}

func TestUserStore_ApplyDelta(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		require.NoError(t, b.users.Create(ctx, newTestUser("u1", "a@example.com", 100)))

		u, err := b.users.GetByID(ctx, "u1")
		require.NoError(t, err)

		d, err := ledger.ApplyActivityCompletion(u, "quiz-1", 50, 25, baseTime.Add(time.Hour))
		require.NoError(t, err)
		next, err := b.users.ApplyDelta(ctx, "u1", d)
		require.NoError(t, err)
		assert.Equal(t, int64(150), next.Tokens)
		assert.Equal(t, int64(1), next.Version)

		// Stale delta is refused.
		_, err = b.users.ApplyDelta(ctx, "u1", d)
		assert.ErrorIs(t, err, ErrVersionConflict)

		stored, err := b.users.GetByID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(150), stored.Tokens)
		assert.Equal(t, int64(25), stored.XP)
		assert.Equal(t, []string{"quiz-1"}, stored.CompletedActivityIDs())

		// Re-validated against fresh state the duplicate is a validation error.
		_, err = ledger.ApplyActivityCompletion(stored, "quiz-1", 50, 25, baseTime)
		assert.ErrorIs(t, err, ledger.ErrDuplicateActivity)

		r, err := ledger.ApplyPerkRedemption(stored, "data-1gb", "1GB Free Data", 100, baseTime.Add(2*time.Hour))
		require.NoError(t, err)
		next, err = b.users.ApplyDelta(ctx, "u1", r)
		require.NoError(t, err)
		assert.Equal(t, int64(50), next.Tokens)

		bd, err := ledger.ApplyBadgeAward(next, model.Badge{ID: "welcome", Name: "Welcome Badge", Rarity: model.RarityCommon}, baseTime)
		require.NoError(t, err)
		_, err = b.users.ApplyDelta(ctx, "u1", bd)
		require.NoError(t, err)

		stored, err = b.users.GetByID(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, stored.RedeemedPerks, 1)
		assert.Equal(t, int64(100), stored.RedeemedPerks[0].Cost)
		require.Len(t, stored.Badges, 1)
		assert.Equal(t, model.RarityCommon, stored.Badges[0].Rarity)
		assert.Equal(t, int64(3), stored.Version)

		entries, err := b.journal.ListByUser(ctx, "u1", 10)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, model.EntryPerk, entries[0].Kind)
		assert.Equal(t, int64(-100), entries[0].Tokens)
		assert.Equal(t, "data-1gb", entries[0].Reference)
		assert.Equal(t, model.EntryActivity, entries[1].Kind)

		_, err = b.users.ApplyDelta(ctx, "missing", d)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestUserStore_ApplyDeltaRejectsOverdraft(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		require.NoError(t, b.users.Create(ctx, newTestUser("u1", "a@example.com", 10)))

		// Hand-built delta that skipped validation.
		d := ledger.Delta{
			Kind:       ledger.KindPerkRedeemed,
			Tokens:     -20,
			Redemption: &model.PerkRedemption{PerkID: "p", PerkName: "P", Cost: 20, RedeemedAt: baseTime},
		}
		_, err := b.users.ApplyDelta(ctx, "u1", d)
		assert.ErrorIs(t, err, ledger.ErrInsufficientTokens)

		u, err := b.users.GetByID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(10), u.Tokens)
		assert.Empty(t, u.RedeemedPerks)
		assert.Equal(t, int64(0), u.Version)
	})
}

func TestUserRepository_OversizedDeltaIsConstraintViolation(t *testing.T) {
	pool := setupTestDB(t)
	users := NewUserRepository(pool)
	ctx := context.Background()
	require.NoError(t, users.Create(ctx, newTestUser("u1", "a@example.com", 100)))

	// Hand-built delta that skipped the ledger length checks.
	d := ledger.Delta{
		Kind:   ledger.KindActivityCompleted,
		Tokens: 10,
		XP:     5,
		Activity: &model.CompletedActivity{
			ActivityID:   strings.Repeat("a", ledger.MaxIDLength+1),
			TokensEarned: 10,
			XPEarned:     5,
			CompletedAt:  baseTime,
		},
	}
	_, err := users.ApplyDelta(ctx, "u1", d)
	assert.ErrorIs(t, err, ErrConstraintViolation)
	assert.NotErrorIs(t, err, ErrStorageUnavailable)

	u, err := users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), u.Tokens)
	assert.Empty(t, u.CompletedActivities)
	assert.Equal(t, int64(0), u.Version)
}

func TestUserStore_ConcurrentDeltasSerialize(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		require.NoError(t, b.users.Create(ctx, newTestUser("u1", "a@example.com", 100)))

		base, err := b.users.GetByID(ctx, "u1")
		require.NoError(t, err)

		var wg sync.WaitGroup
		results := make([]error, 5)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				d, err := ledger.ApplyActivityCompletion(base, fmt.Sprintf("act-%d", i), 10, 10, baseTime)
				if err != nil {
					results[i] = err
					return
				}
				_, results[i] = b.users.ApplyDelta(ctx, "u1", d)
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range results {
			if err == nil {
				wins++
			} else {
				assert.ErrorIs(t, err, ErrVersionConflict)
			}
		}
		assert.Equal(t, 1, wins)

		u, err := b.users.GetByID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(110), u.Tokens)
		assert.Len(t, u.CompletedActivities, 1)
	})
}

func TestUserStore_ProfileAndTelegram(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		require.NoError(t, b.users.Create(ctx, newTestUser("u1", "a@example.com", 100)))
		require.NoError(t, b.users.Create(ctx, newTestUser("u2", "b@example.com", 100)))

		name := "Renamed"
		lang := "hi"
		tts := true
		u, err := b.users.UpdateProfile(ctx, "u1", model.ProfileUpdate{Name: &name, Language: &lang, TTSEnabled: &tts})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", u.Name)
		assert.Equal(t, "hi", u.Language)
		assert.True(t, u.TTSEnabled)
		assert.Equal(t, "a@example.com", u.Email)
		assert.Equal(t, int64(100), u.Tokens)
		assert.Equal(t, int64(0), u.Version)

		taken := "b@example.com"
		_, err = b.users.UpdateProfile(ctx, "u1", model.ProfileUpdate{Email: &taken})
		assert.ErrorIs(t, err, ErrDuplicateEmail)

		_, err = b.users.UpdateProfile(ctx, "missing", model.ProfileUpdate{Name: &name})
		assert.ErrorIs(t, err, ErrUserNotFound)

		require.NoError(t, b.users.LinkTelegram(ctx, "u1", 4242))
		linked, err := b.users.GetByTelegramID(ctx, 4242)
		require.NoError(t, err)
		assert.Equal(t, "u1", linked.ID)

		err = b.users.LinkTelegram(ctx, "u2", 4242)
		assert.ErrorIs(t, err, ErrTelegramLinked)

		_, err = b.users.GetByTelegramID(ctx, 1)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestUserStore_DeleteCascades(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		require.NoError(t, b.users.Create(ctx, newTestUser("u1", "a@example.com", 100)))
		require.NoError(t, b.sessions.Create(ctx, &model.Session{
			ID: "s1", UserID: "u1", TokenHash: fmt.Sprintf("%064d", 1),
			ExpiresAt: baseTime.Add(time.Hour), CreatedAt: baseTime,
		}))

		u, err := b.users.GetByID(ctx, "u1")
		require.NoError(t, err)
		d, err := ledger.ApplyActivityCompletion(u, "quiz-1", 50, 25, baseTime)
		require.NoError(t, err)
		_, err = b.users.ApplyDelta(ctx, "u1", d)
		require.NoError(t, err)

		require.NoError(t, b.users.Delete(ctx, "u1"))

		_, err = b.users.GetByID(ctx, "u1")
		assert.ErrorIs(t, err, ErrUserNotFound)
		_, err = b.sessions.GetValid(ctx, fmt.Sprintf("%064d", 1), baseTime)
		assert.ErrorIs(t, err, ErrSessionNotFound)
		entries, err := b.journal.ListByUser(ctx, "u1", 10)
		require.NoError(t, err)
		assert.Empty(t, entries)

		assert.ErrorIs(t, b.users.Delete(ctx, "u1"), ErrUserNotFound)

		// The email is free again.
		require.NoError(t, b.users.Create(ctx, newTestUser("u3", "a@example.com", 100)))
	})
}

func TestSessionStore(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		require.NoError(t, b.users.Create(ctx, newTestUser("u1", "a@example.com", 100)))

		live := fmt.Sprintf("%064d", 1)
		stale := fmt.Sprintf("%064d", 2)
		require.NoError(t, b.sessions.Create(ctx, &model.Session{
			ID: "s1", UserID: "u1", TokenHash: live, ExpiresAt: baseTime.Add(time.Hour), CreatedAt: baseTime,
		}))
		require.NoError(t, b.sessions.Create(ctx, &model.Session{
			ID: "s2", UserID: "u1", TokenHash: stale, ExpiresAt: baseTime.Add(-time.Minute), CreatedAt: baseTime,
		}))

		s, err := b.sessions.GetValid(ctx, live, baseTime)
		require.NoError(t, err)
		assert.Equal(t, "u1", s.UserID)

		_, err = b.sessions.GetValid(ctx, stale, baseTime)
		assert.ErrorIs(t, err, ErrSessionNotFound)

		n, err := b.sessions.DeleteExpired(ctx, baseTime)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		require.NoError(t, b.sessions.Delete(ctx, live))
		assert.ErrorIs(t, b.sessions.Delete(ctx, live), ErrSessionNotFound)
	})
}

func TestLeaderboardStore(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		poor := newTestUser("poor", "poor@example.com", 50)
		rich := newTestUser("rich", "rich@example.com", 500)
		early := newTestUser("early", "early@example.com", 200)
		late := newTestUser("late", "late@example.com", 200)
		late.CreatedAt = baseTime.Add(time.Hour)
		for _, u := range []*model.User{poor, rich, late, early} {
			require.NoError(t, b.users.Create(ctx, u))
		}

		page, err := b.leaderboard.Page(ctx, 10, 0)
		require.NoError(t, err)
		ids := make([]string, 0, len(page))
		for _, e := range page {
			ids = append(ids, e.UserID)
		}
		assert.Equal(t, []string{"rich", "early", "late", "poor"}, ids)
		assert.Equal(t, 1, page[0].Position)
		assert.Equal(t, 4, page[3].Position)

		page, err = b.leaderboard.Page(ctx, 2, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "late", page[0].UserID)
		assert.Equal(t, 3, page[0].Position)

		n, err := b.leaderboard.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, n)

		pos, err := b.leaderboard.Position(ctx, "poor")
		require.NoError(t, err)
		assert.Equal(t, 4, pos)

		_, err = b.leaderboard.Position(ctx, "missing")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestJournal_TopEarnersSince(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		require.NoError(t, b.users.Create(ctx, newTestUser("u1", "a@example.com", 100)))
		require.NoError(t, b.users.Create(ctx, newTestUser("u2", "b@example.com", 100)))

		complete := func(id, activity string, tokens int64, at time.Time) {
			u, err := b.users.GetByID(ctx, id)
			require.NoError(t, err)
			d, err := ledger.ApplyActivityCompletion(u, activity, tokens, 10, at)
			require.NoError(t, err)
			_, err = b.users.ApplyDelta(ctx, id, d)
			require.NoError(t, err)
		}
		complete("u1", "old", 500, baseTime.Add(-48*time.Hour))
		complete("u1", "quiz-1", 50, baseTime.Add(time.Hour))
		complete("u2", "game-1", 75, baseTime.Add(2*time.Hour))

		ranks, err := b.journal.TopEarnersSince(ctx, baseTime, 10)
		require.NoError(t, err)
		require.Len(t, ranks, 2)
		assert.Equal(t, "u2", ranks[0].UserID)
		assert.Equal(t, int64(75), ranks[0].Earned)
		assert.Equal(t, "u1", ranks[1].UserID)
		assert.Equal(t, int64(50), ranks[1].Earned)
	})
}
