// Package catalog holds the static activity, perk and badge catalogs.
package catalog

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"telco-rewards/internal/ledger"
	"telco-rewards/internal/model"
)

// Perk availability values.
const (
	Available   = "available"
	Limited     = "limited"
	Unavailable = "unavailable"
)

// activities contains every activity that can be completed, keyed by id.
// Add new activities here and to activityOrder.
var activities = map[string]model.Activity{
	"quiz-1": {
		ID: "quiz-1", Title: "Telco Knowledge Quiz",
		Description: "Test your knowledge about telecommunications",
		Type:        "quiz", Category: "Education",
		Tokens: 50, XP: 25, Duration: 5, Difficulty: model.DifficultyEasy, Icon: "🧠",
	},
	"game-1": {
		ID: "game-1", Title: "Signal Strength Game",
		Description: "Connect towers to maximize signal coverage",
		Type:        "game", Category: "Strategy",
		Tokens: 75, XP: 40, Duration: 10, Difficulty: model.DifficultyMedium, Icon: "📡",
	},
	"video-1": {
		ID: "video-1", Title: "5G Technology Overview",
		Description: "Learn about the future of mobile networks",
		Type:        "video", Category: "Education",
		Tokens: 30, XP: 15, Duration: 8, Difficulty: model.DifficultyEasy, Icon: "📱",
	},
	"puzzle-1": {
		ID: "puzzle-1", Title: "Network Puzzle Challenge",
		Description: "Solve network routing puzzles",
		Type:        "puzzle", Category: "Logic",
		Tokens: 60, XP: 35, Duration: 12, Difficulty: model.DifficultyMedium, Icon: "🧩",
	},
	"trivia-1": {
		ID: "trivia-1", Title: "Mobile History Trivia",
		Description: "Fun facts about mobile phone evolution",
		Type:        "trivia", Category: "Fun",
		Tokens: 40, XP: 20, Duration: 6, Difficulty: model.DifficultyEasy, Icon: "📞",
	},
	"memory-1": {
		ID: "memory-1", Title: "Data Plan Memory Game",
		Description: "Match data plans with their features",
		Type:        "memory", Category: "Memory",
		Tokens: 55, XP: 30, Duration: 8, Difficulty: model.DifficultyMedium, Icon: "🧠",
	},
	"strategy-1": {
		ID: "strategy-1", Title: "Tower Defense Strategy",
		Description: "Build and defend your network infrastructure",
		Type:        "strategy", Category: "Strategy",
		Tokens: 85, XP: 50, Duration: 15, Difficulty: model.DifficultyHard, Icon: "🏗️",
	},
	"arcade-1": {
		ID: "arcade-1", Title: "Spectrum Surfing",
		Description: "Navigate through radio frequencies",
		Type:        "arcade", Category: "Action",
		Tokens: 70, XP: 45, Duration: 7, Difficulty: model.DifficultyMedium, Icon: "🎮",
	},
	"simulator-1": {
		ID: "simulator-1", Title: "Network Operations Center",
		Description: "Manage a virtual telecom network",
		Type:        "simulator", Category: "Simulation",
		Tokens: 100, XP: 60, Duration: 20, Difficulty: model.DifficultyHard, Icon: "🖥️",
	},
	"word-puzzle": {
		ID: "word-puzzle", Title: "Telecom Word Puzzle",
		Description: "Find hidden telecom terms",
		Type:        "puzzle", Category: "Word Games",
		Tokens: 45, XP: 25, Duration: 8, Difficulty: model.DifficultyEasy, Icon: "🔤",
	},
	"speed-typing": {
		ID: "speed-typing", Title: "Speed Typing Challenge",
		Description: "Type telecom terms as fast as you can",
		Type:        "arcade", Category: "Skills",
		Tokens: 65, XP: 35, Duration: 5, Difficulty: model.DifficultyMedium, Icon: "⌨️",
	},
	"color-match": {
		ID: "color-match", Title: "Signal Color Match",
		Description: "Match signal strength colors",
		Type:        "memory", Category: "Memory",
		Tokens: 50, XP: 30, Duration: 6, Difficulty: model.DifficultyMedium, Icon: "🌈",
	},
}

var activityOrder = []string{
	"quiz-1", "game-1", "video-1", "puzzle-1", "trivia-1", "memory-1",
	"strategy-1", "arcade-1", "simulator-1", "word-puzzle", "speed-typing", "color-match",
}

var perks = map[string]model.Perk{
	"data-1gb": {
		ID: "data-1gb", Name: "1GB Free Data",
		Description: "Extra 1GB data for your mobile plan",
		Cost:        100, Category: "Data", Availability: Available, ValidUntil: "2024-12-31",
	},
	"minutes-100": {
		ID: "minutes-100", Name: "100 Free Minutes",
		Description: "Free calling minutes for local calls",
		Cost:        150, Category: "Voice", Availability: Available, ValidUntil: "2024-12-31",
	},
	"sms-500": {
		ID: "sms-500", Name: "500 Free SMS",
		Description: "Free text messages",
		Cost:        75, Category: "SMS", Availability: Limited, ValidUntil: "2024-11-30",
	},
	"premium-subscription": {
		ID: "premium-subscription", Name: "Premium Subscription",
		Description: "30-day premium features access",
		Cost:        500, Category: "Premium", Availability: Available, ValidUntil: "2024-12-31",
	},
}

var perkOrder = []string{"data-1gb", "minutes-100", "sms-500", "premium-subscription"}

// Badges that are granted by hand (admin or migration) rather than by a rule.
var extraBadges = []model.Badge{
	{ID: "welcome", Name: "Welcome Badge", Description: "Joined TelcoRewards", Icon: "👋", Rarity: model.RarityCommon},
	{ID: "quiz-master", Name: "Quiz Master", Description: "Completed 10 quizzes", Icon: "🧠", Rarity: model.RarityEpic},
	{ID: "token-collector", Name: "Token Collector", Description: "Earned 1000 tokens", Icon: "💰", Rarity: model.RarityLegendary},
}

// Activities returns all activities in display order.
func Activities() []model.Activity {
	items := make([]model.Activity, 0, len(activityOrder))
	for _, id := range activityOrder {
		if a, ok := activities[id]; ok {
			items = append(items, a)
		}
	}
	return items
}

// Activity returns the activity with the given id.
func Activity(id string) (model.Activity, bool) {
	a, ok := activities[id]
	return a, ok
}

// Perks returns all perks in display order.
func Perks() []model.Perk {
	items := make([]model.Perk, 0, len(perkOrder))
	for _, id := range perkOrder {
		if p, ok := perks[id]; ok {
			items = append(items, p)
		}
	}
	return items
}

// Perk returns the perk with the given id.
func Perk(id string) (model.Perk, bool) {
	p, ok := perks[id]
	return p, ok
}

// Redeemable reports whether a perk can currently be redeemed.
func Redeemable(p model.Perk) bool {
	return p.Availability != Unavailable
}

// Badges returns every known badge: the rule-driven ones first, then the
// manually granted ones.
func Badges() []model.Badge {
	rules := ledger.DefaultBadgeRules()
	items := make([]model.Badge, 0, len(rules)+len(extraBadges))
	for _, r := range rules {
		items = append(items, r.Badge)
	}
	return append(items, extraBadges...)
}

// Badge returns the badge with the given id.
func Badge(id string) (model.Badge, bool) {
	for _, b := range Badges() {
		if b.ID == id {
			return b, true
		}
	}
	return model.Badge{}, false
}

type activitySource []model.Activity

func (s activitySource) String(i int) string {
	return s[i].Title + " " + s[i].Description
}

func (s activitySource) Len() int { return len(s) }

// SearchActivities filters activities by category (case-insensitive, empty
// matches all) and fuzzy-matches query against title and description.
// Results are ordered by match quality; an empty query keeps display order.
func SearchActivities(query, category string) []model.Activity {
	var pool activitySource
	for _, a := range Activities() {
		if category == "" || strings.EqualFold(a.Category, category) {
			pool = append(pool, a)
		}
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return pool
	}

	matches := fuzzy.FindFrom(query, pool)
	result := make([]model.Activity, 0, len(matches))
	for _, m := range matches {
		result = append(result, pool[m.Index])
	}
	return result
}
