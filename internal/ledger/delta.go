// Package ledger holds the progression rules: how tokens, XP, level, streak,
// badges and perk redemptions change in response to an event.
//
// Everything here is pure. Functions take the prior user state and the
// current time as arguments and return a Delta or a rejection; nothing reads
// the clock, touches storage or mutates its inputs.
package ledger

import (
	"time"

	"telco-rewards/internal/model"
)

// XPPerLevel is the amount of XP between two levels.
const XPPerLevel = 100

// Length limits, in characters, of client-supplied fields. The storage
// schema sizes its columns from these.
const (
	MaxIDLength        = 100 // activity, perk and badge ids
	MaxBadgeNameLength = 100
	MaxBadgeIconLength = 16
	MaxPerkNameLength  = 255
)

// Kind names the event that produced a delta.
type Kind string

// Event kinds.
const (
	KindActivityCompleted Kind = "activity_completed"
	KindPerkRedeemed      Kind = "perk_redeemed"
	KindStreakCheck       Kind = "streak_check"
	KindBadgeAwarded      Kind = "badge_awarded"
)

// Delta is a computed set of changes to a user record.
// BaseVersion is the user version the delta was computed against; stores
// refuse to apply it to any other version.
type Delta struct {
	Kind        Kind
	BaseVersion int64

	Tokens    int64
	XP        int64
	Streak    *int
	LastLogin *time.Time

	Activity   *model.CompletedActivity
	Badge      *model.Badge
	Redemption *model.PerkRedemption
}

// IsEmpty reports whether applying the delta would change nothing.
func (d Delta) IsEmpty() bool {
	return d.Tokens == 0 && d.XP == 0 && d.Streak == nil && d.LastLogin == nil &&
		d.Activity == nil && d.Badge == nil && d.Redemption == nil
}

// MovesBalance reports whether the delta changes tokens or XP.
func (d Delta) MovesBalance() bool {
	return d.Tokens != 0 || d.XP != 0
}

// Reference returns the id of the catalog item the delta concerns.
func (d Delta) Reference() string {
	switch {
	case d.Activity != nil:
		return d.Activity.ActivityID
	case d.Redemption != nil:
		return d.Redemption.PerkID
	case d.Badge != nil:
		return d.Badge.ID
	}
	return ""
}

// JournalKind maps the delta to a journal entry kind.
func (d Delta) JournalKind() string {
	switch d.Kind {
	case KindActivityCompleted:
		return model.EntryActivity
	case KindPerkRedeemed:
		return model.EntryPerk
	}
	return string(d.Kind)
}

// DeriveLevel returns the level for an XP total: floor(xp/100) + 1.
// Negative XP is a caller bug and is treated as zero.
func DeriveLevel(xp int64) int {
	if xp < 0 {
		xp = 0
	}
	return int(xp/XPPerLevel) + 1
}

// Apply returns a copy of u with d applied. It re-checks the invariants the
// delta was computed under, so a delta that went stale (for example because
// another writer got there first) is rejected instead of corrupting state.
// The version of the returned user is incremented.
func Apply(u *model.User, d Delta) (*model.User, error) {
	next := u.Clone()

	next.Tokens += d.Tokens
	if next.Tokens < 0 {
		return nil, ErrInsufficientTokens
	}
	next.XP += d.XP
	if next.XP < 0 {
		return nil, invalid("xp cannot decrease below zero")
	}
	next.Level = DeriveLevel(next.XP)

	if d.Streak != nil {
		next.Streak = *d.Streak
	}
	if d.LastLogin != nil {
		next.LastLogin = *d.LastLogin
	}
	if d.Activity != nil {
		if u.HasCompleted(d.Activity.ActivityID) {
			return nil, ErrDuplicateActivity
		}
		next.CompletedActivities = append(next.CompletedActivities, *d.Activity)
	}
	if d.Badge != nil {
		if u.HasBadge(d.Badge.ID) {
			return nil, ErrDuplicateBadge
		}
		next.Badges = append(next.Badges, *d.Badge)
	}
	if d.Redemption != nil {
		next.RedeemedPerks = append(next.RedeemedPerks, *d.Redemption)
	}

	next.Version = u.Version + 1
	return next, nil
}
