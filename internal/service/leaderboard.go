package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"telco-rewards/internal/config"
	"telco-rewards/internal/model"
)

// neighbours is how many standings are shown on each side of a user.
const neighbours = 2

// LeaderboardPage is one page of standings.
type LeaderboardPage struct {
	Entries []*model.LeaderboardEntry `json:"leaderboard"`
	Total   int                       `json:"total"`
	Limit   int                       `json:"limit"`
	Offset  int                       `json:"offset"`
	HasMore bool                      `json:"hasMore"`
}

// Standing is a user's rank with the users around them.
type Standing struct {
	Position int                       `json:"position"`
	Total    int                       `json:"total"`
	Nearby   []*model.LeaderboardEntry `json:"nearby"`
}

type cachedPage struct {
	page     *LeaderboardPage
	cachedAt time.Time
	gen      uint64
}

// LeaderboardService handles ranking and leaderboard operations.
// Pages are cached until the TTL passes or Invalidate is called. A page is
// tagged with the generation it was read in, and pages from an older
// generation are never served.
type LeaderboardService struct {
	board    LeaderboardStore
	journal  JournalStore
	cache    *lru.Cache
	gen      atomic.Uint64
	cfg      config.LeaderboardConfig
	timezone *time.Location
	now      func() time.Time
}

// NewLeaderboardService creates a new LeaderboardService instance.
func NewLeaderboardService(
	board LeaderboardStore,
	journal JournalStore,
	cfg config.LeaderboardConfig,
	timezone *time.Location,
	now func() time.Time,
) *LeaderboardService {
	if timezone == nil {
		timezone = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 64
	}
	cache, _ := lru.New(size)
	return &LeaderboardService{
		board:    board,
		journal:  journal,
		cache:    cache,
		cfg:      cfg,
		timezone: timezone,
		now:      now,
	}
}

// Invalidate drops every cached page. It has the signature of a
// ProgressionService.OnApplied hook.
func (s *LeaderboardService) Invalidate(*model.User) {
	s.gen.Add(1)
	s.cache.Purge()
}

// Top returns a page of standings. A non-positive limit means the default;
// limits above the maximum are clamped.
func (s *LeaderboardService) Top(ctx context.Context, limit, offset int) (*LeaderboardPage, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	key := fmt.Sprintf("%d:%d", limit, offset)
	gen := s.gen.Load()
	if v, ok := s.cache.Get(key); ok {
		cp := v.(cachedPage)
		fresh := s.cfg.CacheTTL <= 0 || s.now().Sub(cp.cachedAt) < s.cfg.CacheTTL
		if fresh && cp.gen == gen {
			return cp.page, nil
		}
	}

	page := &LeaderboardPage{Limit: limit, Offset: offset}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entries, err := s.board.Page(gctx, limit, offset)
		if err != nil {
			return fmt.Errorf("failed to load leaderboard page: %w", err)
		}
		page.Entries = entries
		return nil
	})
	g.Go(func() error {
		total, err := s.board.Count(gctx)
		if err != nil {
			return fmt.Errorf("failed to count users: %w", err)
		}
		page.Total = total
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if page.Entries == nil {
		page.Entries = []*model.LeaderboardEntry{}
	}
	page.HasMore = offset+len(page.Entries) < page.Total

	s.cache.Add(key, cachedPage{page: page, cachedAt: s.now(), gen: gen})
	log.Debug().Int("limit", limit).Int("offset", offset).Msg("Leaderboard page cached")
	return page, nil
}

// Position returns a user's rank with up to two users above and below.
func (s *LeaderboardService) Position(ctx context.Context, userID string) (*Standing, error) {
	pos, err := s.board.Position(ctx, userID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	start := pos - 1 - neighbours
	if start < 0 {
		start = 0
	}

	st := &Standing{Position: pos}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		nearby, err := s.board.Page(gctx, pos-start+neighbours, start)
		st.Nearby = nearby
		return err
	})
	g.Go(func() error {
		total, err := s.board.Count(gctx)
		st.Total = total
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return st, nil
}

// TopEarnersToday ranks users by activity tokens earned since local
// midnight.
func (s *LeaderboardService) TopEarnersToday(ctx context.Context, limit int) ([]*model.EarnerRank, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	now := s.now().In(s.timezone)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.timezone)
	return s.journal.TopEarnersSince(ctx, midnight, limit)
}
