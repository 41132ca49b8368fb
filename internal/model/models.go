// Package model defines the data models for the rewards service.
package model

import "time"

// Rarity classifies a badge. It is fixed catalog metadata.
type Rarity string

// Badge rarities.
const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Valid reports whether r is one of the known rarities.
func (r Rarity) Valid() bool {
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	}
	return false
}

// Difficulty of a catalog activity.
type Difficulty string

// Activity difficulties.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// User is the identity and progression record of a loyalty member.
// Level is always derived from XP and is never written on its own.
type User struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Avatar       string    `db:"avatar" json:"avatar"`
	Tokens       int64     `db:"tokens" json:"tokens"`
	XP           int64     `db:"xp" json:"xp"`
	Level        int       `db:"level" json:"level"`
	Streak       int       `db:"streak" json:"streak"`
	LastLogin    time.Time `db:"last_login" json:"last_login"`
	Language     string    `db:"language" json:"language"`
	TTSEnabled   bool      `db:"tts_enabled" json:"tts_enabled"`
	TelegramID   *int64    `db:"telegram_id" json:"-"`
	Version      int64     `db:"version" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`

	// Owned records, in insertion order.
	CompletedActivities []CompletedActivity `json:"-"`
	Badges              []Badge             `json:"badges"`
	RedeemedPerks       []PerkRedemption    `json:"redeemed_perks"`
}

// HasCompleted reports whether the activity is already in the user's completed set.
func (u *User) HasCompleted(activityID string) bool {
	for _, a := range u.CompletedActivities {
		if a.ActivityID == activityID {
			return true
		}
	}
	return false
}

// HasBadge reports whether the user already earned the badge.
func (u *User) HasBadge(badgeID string) bool {
	for _, b := range u.Badges {
		if b.ID == badgeID {
			return true
		}
	}
	return false
}

// CompletedActivityIDs returns the completed activity ids in completion order.
func (u *User) CompletedActivityIDs() []string {
	ids := make([]string, 0, len(u.CompletedActivities))
	for _, a := range u.CompletedActivities {
		ids = append(ids, a.ActivityID)
	}
	return ids
}

// Clone returns a deep copy of the user aggregate.
func (u *User) Clone() *User {
	c := *u
	if u.TelegramID != nil {
		id := *u.TelegramID
		c.TelegramID = &id
	}
	c.CompletedActivities = append([]CompletedActivity(nil), u.CompletedActivities...)
	c.Badges = append([]Badge(nil), u.Badges...)
	c.RedeemedPerks = append([]PerkRedemption(nil), u.RedeemedPerks...)
	return &c
}

// CompletedActivity records one completion of a catalog activity.
type CompletedActivity struct {
	ActivityID   string    `db:"activity_id" json:"activity_id"`
	TokensEarned int64     `db:"tokens_earned" json:"tokens_earned"`
	XPEarned     int64     `db:"xp_earned" json:"xp_earned"`
	CompletedAt  time.Time `db:"completed_at" json:"completed_at"`
}

// Badge is an earned (or earnable) achievement.
type Badge struct {
	ID          string    `db:"badge_id" json:"id"`
	Name        string    `db:"badge_name" json:"name"`
	Description string    `db:"badge_description" json:"description"`
	Icon        string    `db:"badge_icon" json:"icon"`
	Rarity      Rarity    `db:"badge_rarity" json:"rarity"`
	EarnedAt    time.Time `db:"earned_at" json:"earned_at,omitempty"`
}

// PerkRedemption is an append-only record of a perk purchase.
// Cost is captured at redemption time.
type PerkRedemption struct {
	PerkID     string    `db:"perk_id" json:"perk_id"`
	PerkName   string    `db:"perk_name" json:"perk_name"`
	Cost       int64     `db:"cost" json:"cost"`
	RedeemedAt time.Time `db:"redeemed_at" json:"redeemed_at"`
}

// Activity is a static catalog entry. Users only relate to it by completing it.
type Activity struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Type        string     `json:"type"`
	Category    string     `json:"category"`
	Tokens      int64      `json:"tokens"`
	XP          int64      `json:"xp"`
	Duration    int        `json:"duration"`
	Difficulty  Difficulty `json:"difficulty"`
	Icon        string     `json:"icon"`
}

// Perk is a redeemable reward item.
type Perk struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Cost         int64  `json:"cost"`
	Category     string `json:"category"`
	Availability string `json:"availability"`
	ValidUntil   string `json:"valid_until"`
}

// Session is a server-side record of an issued access token.
// Only the SHA-256 hash of the token is stored.
type Session struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	TokenHash string    `db:"token_hash" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// LedgerEntry is one line of the token/XP journal.
type LedgerEntry struct {
	ID        int64     `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Tokens    int64     `db:"tokens" json:"tokens"`
	XP        int64     `db:"xp" json:"xp"`
	Kind      string    `db:"kind" json:"kind"`
	Reference string    `db:"reference" json:"reference"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Journal entry kinds.
const (
	EntryWelcome  = "welcome"  // Registration bonus
	EntryActivity = "activity" // Activity completion reward
	EntryPerk     = "perk"     // Perk redemption
)

// LeaderboardEntry is a user's public standing.
type LeaderboardEntry struct {
	Position   int    `db:"position" json:"position"`
	UserID     string `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	Avatar     string `db:"avatar" json:"avatar"`
	Tokens     int64  `db:"tokens" json:"tokens"`
	Level      int    `db:"level" json:"level"`
	Streak     int    `db:"streak" json:"streak"`
	BadgeCount int    `db:"badges_count" json:"badges_count"`
}

// EarnerRank is a user's token income over a period.
type EarnerRank struct {
	UserID string `db:"user_id" json:"user_id"`
	Name   string `db:"name" json:"name"`
	Earned int64  `db:"earned" json:"earned"`
}

// ProfileUpdate holds optional profile changes. Nil fields are left untouched.
type ProfileUpdate struct {
	Name       *string
	Email      *string
	Avatar     *string
	Language   *string
	TTSEnabled *bool
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Avatar == nil && p.Language == nil && p.TTSEnabled == nil
}
