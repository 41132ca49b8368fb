package ledger

import "telco-rewards/internal/model"

// Trigger names the kind of event after which a badge rule is evaluated.
type Trigger string

// Badge rule triggers.
const (
	TriggerActivity Trigger = "activity"
	TriggerStreak   Trigger = "streak"
)

// Report is what a caller knows about the event it just processed.
// Score and Perfect come from the mini-game and are only meaningful for
// TriggerActivity.
type Report struct {
	Trigger Trigger
	Score   int64
	Perfect bool
}

// BadgeRule is one row of the badge eligibility table. Conditions that are
// left at their zero value are not checked; a rule with several conditions
// requires all of them.
type BadgeRule struct {
	Badge   model.Badge
	Trigger Trigger

	// FirstCompletion matches when the completed set grew from 0 to 1.
	FirstCompletion bool
	// RequirePerfect matches when the game reported a perfect run.
	RequirePerfect bool
	// MinScore matches when the reported score is at least this value.
	MinScore int64
	// StreakReaches matches when the streak changed to exactly this value.
	StreakReaches int
}

// Badge ids used by the default rules.
const (
	BadgeFirstActivity = "first-activity"
	BadgePerfectionist = "perfectionist"
	BadgeHighScorer    = "high-scorer"
	BadgeWeekWarrior   = "streak-7"
)

// HighScoreThreshold is the score needed for the High Scorer badge.
const HighScoreThreshold = 800

// DefaultBadgeRules returns the standard eligibility table.
func DefaultBadgeRules() []BadgeRule {
	return []BadgeRule{
		{
			Badge: model.Badge{
				ID:          BadgeFirstActivity,
				Name:        "Getting Started",
				Description: "Completed your first activity",
				Icon:        "🎯",
				Rarity:      model.RarityCommon,
			},
			Trigger:         TriggerActivity,
			FirstCompletion: true,
		},
		{
			Badge: model.Badge{
				ID:          BadgePerfectionist,
				Name:        "Perfectionist",
				Description: "Achieved a perfect score",
				Icon:        "💯",
				Rarity:      model.RarityRare,
			},
			Trigger:        TriggerActivity,
			RequirePerfect: true,
		},
		{
			Badge: model.Badge{
				ID:          BadgeHighScorer,
				Name:        "High Scorer",
				Description: "Scored 800+ points in a game",
				Icon:        "🏆",
				Rarity:      model.RarityEpic,
			},
			Trigger:  TriggerActivity,
			MinScore: HighScoreThreshold,
		},
		{
			Badge: model.Badge{
				ID:          BadgeWeekWarrior,
				Name:        "Week Warrior",
				Description: "7-day login streak",
				Icon:        "🔥",
				Rarity:      model.RarityRare,
			},
			Trigger:       TriggerStreak,
			StreakReaches: 7,
		},
	}
}

// Matches reports whether the rule fires for the transition before -> after.
func (r BadgeRule) Matches(before, after *model.User, rep Report) bool {
	if r.Trigger != rep.Trigger {
		return false
	}
	if r.FirstCompletion && !(len(before.CompletedActivities) == 0 && len(after.CompletedActivities) == 1) {
		return false
	}
	if r.RequirePerfect && !rep.Perfect {
		return false
	}
	if r.MinScore > 0 && rep.Score < r.MinScore {
		return false
	}
	if r.StreakReaches > 0 && !(after.Streak == r.StreakReaches && before.Streak != r.StreakReaches) {
		return false
	}
	return true
}

// EligibleBadges returns the badges the transition earns that the user does
// not hold yet, in table order.
func EligibleBadges(rules []BadgeRule, before, after *model.User, rep Report) []model.Badge {
	var earned []model.Badge
	for _, r := range rules {
		if after.HasBadge(r.Badge.ID) {
			continue
		}
		if r.Matches(before, after, rep) {
			earned = append(earned, r.Badge)
		}
	}
	return earned
}
