package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"telco-rewards/internal/config"
	"telco-rewards/internal/ledger"
	"telco-rewards/internal/model"
	"telco-rewards/internal/pkg/lock"
)

var testEpoch = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

// fakeClock is a settable clock shared by every service in a test env.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	clock       *fakeClock
	stores      Stores
	progression *ProgressionService
	auth        *AuthService
	profile     *ProfileService
	leaderboard *LeaderboardService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &fakeClock{now: testEpoch}
	stores := MemoryStores()
	progression := NewProgressionService(stores.Users, lock.NewUserLock(), WithClock(clock.Now))
	board := NewLeaderboardService(stores.Leaderboard, stores.Journal, config.LeaderboardConfig{
		DefaultLimit: 10,
		MaxLimit:     100,
		CacheSize:    16,
		CacheTTL:     time.Minute,
	}, time.UTC, clock.Now)
	progression.OnApplied(board.Invalidate)

	return &testEnv{
		clock:       clock,
		stores:      stores,
		progression: progression,
		auth: NewAuthService(stores.Users, stores.Sessions, progression, config.AuthConfig{
			JWTSecret:  "test-secret",
			TokenTTL:   7 * 24 * time.Hour,
			BcryptCost: bcrypt.MinCost,
		}, 100),
		profile:     NewProfileService(stores.Users, stores.Journal, stores.Leaderboard),
		leaderboard: board,
	}
}

// seedUser stores a user directly, bypassing registration.
func (e *testEnv) seedUser(t *testing.T, id string, tokens int64) *model.User {
	t.Helper()

	now := e.clock.Now()
	u := &model.User{
		ID:        id,
		Name:      "User " + id,
		Email:     id + "@example.com",
		Tokens:    tokens,
		Level:     1,
		Streak:    1,
		LastLogin: now,
		Language:  "en",
		CreatedAt: now,
	}
	require.NoError(t, e.stores.Users.Create(context.Background(), u))
	return u
}

// flakyStore wraps a UserStore and fails ApplyDelta with a fixed error.
type flakyStore struct {
	UserStore
	applyErr error
	calls    int
}

func (s *flakyStore) ApplyDelta(ctx context.Context, id string, d ledger.Delta) (*model.User, error) {
	s.calls++
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	return s.UserStore.ApplyDelta(ctx, id, d)
}

// mustCreditDelta builds an activity delta for the user's current version.
func mustCreditDelta(t *testing.T, e *testEnv, id string, tokens int64) ledger.Delta {
	t.Helper()

	u, err := e.stores.Users.GetByID(context.Background(), id)
	require.NoError(t, err)
	d, err := ledger.ApplyActivityCompletion(u, "direct-"+id, tokens, 0, e.clock.Now())
	require.NoError(t, err)
	return d
}
