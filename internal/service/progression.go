package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"telco-rewards/internal/catalog"
	"telco-rewards/internal/ledger"
	"telco-rewards/internal/model"
	"telco-rewards/internal/pkg/lock"
	"telco-rewards/internal/repository"
)

// EventState is where an event ended up.
type EventState string

// Event states. Received and Validated are intermediate; the others are
// terminal.
const (
	StateReceived      EventState = "received"
	StateValidated     EventState = "validated"
	StateApplied       EventState = "applied"
	StateRejected      EventState = "rejected"
	StateStorageFailed EventState = "storage_failed"
)

// Outcome describes a processed event. Before is the state the event was
// validated against; User is the state after it (equal to Before when
// nothing was written).
type Outcome struct {
	State  EventState
	Before *model.User
	User   *model.User
	Delta  ledger.Delta
}

// ActivityResult is returned by the game-facing completion calls.
type ActivityResult struct {
	User      *model.User   `json:"user"`
	Tokens    int64         `json:"tokensEarned"`
	XP        int64         `json:"xpEarned"`
	LeveledUp bool          `json:"leveledUp"`
	NewBadges []model.Badge `json:"newBadges"`
}

// CheckInResult is returned by CheckIn.
type CheckInResult struct {
	User      *model.User   `json:"user"`
	Streak    int           `json:"streak"`
	NewBadges []model.Badge `json:"newBadges"`
}

// ProgressionService is the only writer of tokens, XP, level, streak,
// badges and perk redemptions. Events for one user are serialized by a
// per-user lock, and the store's version check catches writers that do not
// share this process's lock.
type ProgressionService struct {
	users       UserStore
	locks       *lock.UserLock
	rules       []ledger.BadgeRule
	maxRetries  int
	lockTimeout time.Duration
	now         func() time.Time
	onApplied   []func(*model.User)
}

// ProgressionOption configures a ProgressionService.
type ProgressionOption func(*ProgressionService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ProgressionOption {
	return func(s *ProgressionService) { s.now = now }
}

// WithMaxRetries sets how many times an event is re-validated after a
// version conflict.
func WithMaxRetries(n int) ProgressionOption {
	return func(s *ProgressionService) { s.maxRetries = n }
}

// WithLockTimeout bounds the wait for a user's lock.
func WithLockTimeout(d time.Duration) ProgressionOption {
	return func(s *ProgressionService) { s.lockTimeout = d }
}

// WithBadgeRules replaces the default badge table.
func WithBadgeRules(rules []ledger.BadgeRule) ProgressionOption {
	return func(s *ProgressionService) { s.rules = rules }
}

// NewProgressionService creates a new ProgressionService instance.
func NewProgressionService(users UserStore, locks *lock.UserLock, opts ...ProgressionOption) *ProgressionService {
	s := &ProgressionService{
		users:       users,
		locks:       locks,
		rules:       ledger.DefaultBadgeRules(),
		maxRetries:  3,
		lockTimeout: 5 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnApplied registers fn to run after every event that changed a user.
// Hooks run synchronously, outside the user's lock.
func (s *ProgressionService) OnApplied(fn func(*model.User)) {
	s.onApplied = append(s.onApplied, fn)
}

// Now returns the service clock's current time.
func (s *ProgressionService) Now() time.Time {
	return s.now()
}

// Process validates ev against the user's current state and applies the
// resulting delta. On any error nothing has been persisted.
func (s *ProgressionService) Process(ctx context.Context, userID string, ev ledger.Event) (*Outcome, error) {
	logger := log.With().Str("user_id", userID).Str("event", string(ev.Kind())).Logger()
	logger.Debug().Str("state", string(StateReceived)).Msg("Event received")

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	if err := s.locks.LockContext(lockCtx, userID); err != nil {
		logger.Warn().Err(err).Msg("Could not acquire user lock")
		if errors.Is(err, lock.ErrLockTimeout) {
			return nil, ErrConcurrentUpdate
		}
		return nil, err
	}

	out, err := s.process(ctx, userID, ev)
	s.locks.Unlock(userID)

	switch out.State {
	case StateApplied:
		logger.Info().
			Str("state", string(out.State)).
			Int64("tokens", out.User.Tokens).
			Int64("xp", out.User.XP).
			Int("level", out.User.Level).
			Int("streak", out.User.Streak).
			Msg("Event applied")
		if !out.Delta.IsEmpty() {
			for _, fn := range s.onApplied {
				fn(out.User)
			}
		}
	case StateRejected:
		logger.Info().Err(err).Str("state", string(out.State)).Msg("Event rejected")
	default:
		logger.Error().Err(err).Str("state", string(out.State)).Msg("Event failed")
	}

	return out, err
}

// process runs the fetch, validate and apply steps. The caller holds the
// user's lock.
func (s *ProgressionService) process(ctx context.Context, userID string, ev ledger.Event) (*Outcome, error) {
	out := &Outcome{State: StateReceived}

	for attempt := 0; ; attempt++ {
		u, err := s.users.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				out.State = StateRejected
				return out, ErrUserNotFound
			}
			out.State = StateStorageFailed
			return out, err
		}
		out.Before = u
		out.User = u

		d, err := ledger.Decide(u, ev)
		if err != nil {
			out.State = StateRejected
			return out, err
		}
		out.State = StateValidated
		out.Delta = d

		if d.IsEmpty() {
			out.State = StateApplied
			return out, nil
		}

		next, err := s.users.ApplyDelta(ctx, userID, d)
		switch {
		case err == nil:
			out.State = StateApplied
			out.User = next
			return out, nil
		case errors.Is(err, repository.ErrVersionConflict):
			if attempt < s.maxRetries {
				log.Debug().Str("user_id", userID).Int("attempt", attempt+1).Msg("Version conflict, re-validating event")
				continue
			}
			out.State = StateRejected
			return out, ErrConcurrentUpdate
		case errors.Is(err, repository.ErrUserNotFound):
			out.State = StateRejected
			return out, ErrUserNotFound
		case errors.Is(err, ledger.ErrValidation), errors.Is(err, repository.ErrConstraintViolation):
			out.State = StateRejected
			return out, err
		default:
			out.State = StateStorageFailed
			return out, err
		}
	}
}

// CompleteActivity credits caller-supplied rewards for an activity.
func (s *ProgressionService) CompleteActivity(ctx context.Context, userID, activityID string, tokensEarned, xpEarned int64) (*model.User, error) {
	out, err := s.Process(ctx, userID, ledger.ActivityCompleted{
		ActivityID:   activityID,
		TokensEarned: tokensEarned,
		XPEarned:     xpEarned,
		At:           s.now(),
	})
	if err != nil {
		return nil, err
	}
	return out.User, nil
}

// RedeemPerk spends cost tokens on a perk.
func (s *ProgressionService) RedeemPerk(ctx context.Context, userID, perkID, perkName string, cost int64) (*model.User, error) {
	out, err := s.Process(ctx, userID, ledger.PerkRedeemed{
		PerkID:   perkID,
		PerkName: perkName,
		Cost:     cost,
		At:       s.now(),
	})
	if err != nil {
		return nil, err
	}
	return out.User, nil
}

// RefreshStreak runs the streak transition as of now.
func (s *ProgressionService) RefreshStreak(ctx context.Context, userID string, now time.Time) (*model.User, error) {
	out, err := s.Process(ctx, userID, ledger.StreakCheck{Now: now})
	if err != nil {
		return nil, err
	}
	return out.User, nil
}

// AwardBadge grants a badge. If the user already has it, the unchanged user
// is returned together with ledger.ErrDuplicateBadge, which callers may
// ignore.
func (s *ProgressionService) AwardBadge(ctx context.Context, userID string, badge model.Badge) (*model.User, error) {
	out, err := s.Process(ctx, userID, ledger.BadgeAwarded{Badge: badge, At: s.now()})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateBadge) && out != nil {
			return out.User, err
		}
		return nil, err
	}
	return out.User, nil
}

// RedeemCatalogPerk redeems a perk at its current catalog price.
func (s *ProgressionService) RedeemCatalogPerk(ctx context.Context, userID, perkID string) (*model.User, error) {
	perk, ok := catalog.Perk(perkID)
	if !ok {
		return nil, ErrPerkNotFound
	}
	if !catalog.Redeemable(perk) {
		return nil, ErrPerkUnavailable
	}
	return s.RedeemPerk(ctx, userID, perk.ID, perk.Name, perk.Cost)
}

// RecordActivity completes an activity with caller-supplied rewards and then
// awards every badge the completion earns.
func (s *ProgressionService) RecordActivity(ctx context.Context, userID, activityID string, tokensEarned, xpEarned int64, rep ledger.Report) (*ActivityResult, error) {
	out, err := s.Process(ctx, userID, ledger.ActivityCompleted{
		ActivityID:   activityID,
		TokensEarned: tokensEarned,
		XPEarned:     xpEarned,
		At:           s.now(),
	})
	if err != nil {
		return nil, err
	}

	rep.Trigger = ledger.TriggerActivity
	user, badges := s.awardEarned(ctx, userID, out.Before, out.User, rep)
	return &ActivityResult{
		User:      user,
		Tokens:    tokensEarned,
		XP:        xpEarned,
		LeveledUp: out.User.Level > out.Before.Level,
		NewBadges: badges,
	}, nil
}

// FinishActivity records a mini-game result. Rewards come from the catalog;
// score and perfect only drive badge rules.
func (s *ProgressionService) FinishActivity(ctx context.Context, userID, activityID string, score int64, perfect bool) (*ActivityResult, error) {
	activity, ok := catalog.Activity(activityID)
	if !ok {
		return nil, ErrActivityNotFound
	}
	if score < 0 {
		return nil, invalidf("score must be non-negative")
	}
	return s.RecordActivity(ctx, userID, activity.ID, activity.Tokens, activity.XP, ledger.Report{
		Score:   score,
		Perfect: perfect,
	})
}

// CheckIn refreshes the login streak and awards streak badges.
func (s *ProgressionService) CheckIn(ctx context.Context, userID string) (*CheckInResult, error) {
	out, err := s.Process(ctx, userID, ledger.StreakCheck{Now: s.now()})
	if err != nil {
		return nil, err
	}

	user, badges := s.awardEarned(ctx, userID, out.Before, out.User, ledger.Report{Trigger: ledger.TriggerStreak})
	return &CheckInResult{User: user, Streak: user.Streak, NewBadges: badges}, nil
}

// awardEarned evaluates the badge table for the before -> after transition
// and awards each eligible badge as its own event. A failed award is logged
// and skipped; the triggering event stays applied.
func (s *ProgressionService) awardEarned(ctx context.Context, userID string, before, after *model.User, rep ledger.Report) (*model.User, []model.Badge) {
	user := after
	var awarded []model.Badge

	for _, badge := range ledger.EligibleBadges(s.rules, before, after, rep) {
		out, err := s.Process(ctx, userID, ledger.BadgeAwarded{Badge: badge, At: s.now()})
		switch {
		case err == nil:
			user = out.User
			awarded = append(awarded, *out.Delta.Badge)
		case errors.Is(err, ledger.ErrDuplicateBadge):
			if out != nil && out.User != nil {
				user = out.User
			}
		default:
			log.Error().Err(err).Str("user_id", userID).Str("badge", badge.ID).Msg("Failed to award earned badge")
		}
	}
	return user, awarded
}
