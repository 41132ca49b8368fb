package ledger

import (
	"fmt"
	"time"

	"telco-rewards/internal/model"
)

// Event is a typed request to change a user's progression. The set of
// implementations is closed: ActivityCompleted, PerkRedeemed, StreakCheck
// and BadgeAwarded.
type Event interface {
	Kind() Kind
	isEvent()
}

// ActivityCompleted reports that the user finished an activity.
type ActivityCompleted struct {
	ActivityID   string
	TokensEarned int64
	XPEarned     int64
	At           time.Time
}

// PerkRedeemed asks to spend tokens on a perk.
type PerkRedeemed struct {
	PerkID   string
	PerkName string
	Cost     int64
	At       time.Time
}

// StreakCheck refreshes the login streak as of Now.
type StreakCheck struct {
	Now time.Time
}

// BadgeAwarded grants a badge.
type BadgeAwarded struct {
	Badge model.Badge
	At    time.Time
}

func (ActivityCompleted) Kind() Kind { return KindActivityCompleted }
func (PerkRedeemed) Kind() Kind      { return KindPerkRedeemed }
func (StreakCheck) Kind() Kind       { return KindStreakCheck }
func (BadgeAwarded) Kind() Kind      { return KindBadgeAwarded }

func (ActivityCompleted) isEvent() {}
func (PerkRedeemed) isEvent()      {}
func (StreakCheck) isEvent()       {}
func (BadgeAwarded) isEvent()      {}

// Decide validates ev against u and returns the resulting delta.
func Decide(u *model.User, ev Event) (Delta, error) {
	switch e := ev.(type) {
	case ActivityCompleted:
		return ApplyActivityCompletion(u, e.ActivityID, e.TokensEarned, e.XPEarned, e.At)
	case PerkRedeemed:
		return ApplyPerkRedemption(u, e.PerkID, e.PerkName, e.Cost, e.At)
	case StreakCheck:
		return ComputeStreakTransition(u, e.Now), nil
	case BadgeAwarded:
		return ApplyBadgeAward(u, e.Badge, e.At)
	default:
		return Delta{}, fmt.Errorf("%w: unsupported event %T", ErrInvalidInput, ev)
	}
}
