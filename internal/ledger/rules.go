package ledger

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"telco-rewards/internal/model"
)

const day = 24 * time.Hour

// ApplyActivityCompletion credits the rewards of a completed activity.
// An activity can be completed once per user.
func ApplyActivityCompletion(u *model.User, activityID string, tokensEarned, xpEarned int64, now time.Time) (Delta, error) {
	if strings.TrimSpace(activityID) == "" {
		return Delta{}, invalid("activity id is required")
	}
	if tokensEarned < 0 {
		return Delta{}, invalid("tokens earned must be non-negative")
	}
	if xpEarned < 0 {
		return Delta{}, invalid("xp earned must be non-negative")
	}
	if tooLong(activityID, MaxIDLength) {
		return Delta{}, invalid("activity id exceeds %d characters", MaxIDLength)
	}
	if u.Tokens > math.MaxInt64-tokensEarned {
		return Delta{}, invalid("tokens earned would overflow the balance")
	}
	if u.XP > math.MaxInt64-xpEarned {
		return Delta{}, invalid("xp earned would overflow the xp total")
	}
	if u.HasCompleted(activityID) {
		return Delta{}, ErrDuplicateActivity
	}

	return Delta{
		Kind:        KindActivityCompleted,
		BaseVersion: u.Version,
		Tokens:      tokensEarned,
		XP:          xpEarned,
		Activity: &model.CompletedActivity{
			ActivityID:   activityID,
			TokensEarned: tokensEarned,
			XPEarned:     xpEarned,
			CompletedAt:  now,
		},
	}, nil
}

// ApplyPerkRedemption debits the perk cost. The whole redemption is rejected
// when the balance cannot cover it.
func ApplyPerkRedemption(u *model.User, perkID, perkName string, cost int64, now time.Time) (Delta, error) {
	if strings.TrimSpace(perkID) == "" {
		return Delta{}, invalid("perk id is required")
	}
	if strings.TrimSpace(perkName) == "" {
		return Delta{}, invalid("perk name is required")
	}
	if cost < 1 {
		return Delta{}, invalid("cost must be positive")
	}
	if tooLong(perkID, MaxIDLength) {
		return Delta{}, invalid("perk id exceeds %d characters", MaxIDLength)
	}
	if tooLong(perkName, MaxPerkNameLength) {
		return Delta{}, invalid("perk name exceeds %d characters", MaxPerkNameLength)
	}
	if u.Tokens < cost {
		return Delta{}, ErrInsufficientTokens
	}

	return Delta{
		Kind:        KindPerkRedeemed,
		BaseVersion: u.Version,
		Tokens:      -cost,
		Redemption: &model.PerkRedemption{
			PerkID:     perkID,
			PerkName:   perkName,
			Cost:       cost,
			RedeemedAt: now,
		},
	}, nil
}

// ApplyBadgeAward adds a badge stamped with now. A second award of the same
// badge returns ErrDuplicateBadge, which callers may safely ignore.
func ApplyBadgeAward(u *model.User, badge model.Badge, now time.Time) (Delta, error) {
	if strings.TrimSpace(badge.ID) == "" {
		return Delta{}, invalid("badge id is required")
	}
	switch {
	case tooLong(badge.ID, MaxIDLength):
		return Delta{}, invalid("badge id exceeds %d characters", MaxIDLength)
	case tooLong(badge.Name, MaxBadgeNameLength):
		return Delta{}, invalid("badge name exceeds %d characters", MaxBadgeNameLength)
	case tooLong(badge.Icon, MaxBadgeIconLength):
		return Delta{}, invalid("badge icon exceeds %d characters", MaxBadgeIconLength)
	}
	if badge.Rarity == "" {
		badge.Rarity = model.RarityCommon
	}
	if !badge.Rarity.Valid() {
		return Delta{}, invalid("unknown badge rarity %q", badge.Rarity)
	}
	if u.HasBadge(badge.ID) {
		return Delta{}, ErrDuplicateBadge
	}

	badge.EarnedAt = now
	return Delta{
		Kind:        KindBadgeAwarded,
		BaseVersion: u.Version,
		Badge:       &badge,
	}, nil
}

func tooLong(s string, limit int) bool {
	return utf8.RuneCountInString(s) > limit
}

// DaysBetween returns the number of whole 24h periods from last to now.
// A clock that went backwards counts as zero days.
func DaysBetween(last, now time.Time) int {
	elapsed := now.Sub(last)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / day)
}

// ComputeStreakTransition advances, keeps or resets the login streak.
// It never fails.
//
//	0 days  -> streak unchanged, last login moves forward only
//	1 day   -> streak + 1
//	>1 days -> streak reset to 1
func ComputeStreakTransition(u *model.User, now time.Time) Delta {
	d := Delta{Kind: KindStreakCheck, BaseVersion: u.Version}

	switch days := DaysBetween(u.LastLogin, now); {
	case days == 0:
		if now.After(u.LastLogin) {
			d.LastLogin = &now
		}
	case days == 1:
		streak := u.Streak + 1
		d.Streak = &streak
		d.LastLogin = &now
	default:
		streak := 1
		d.Streak = &streak
		d.LastLogin = &now
	}
	return d
}
