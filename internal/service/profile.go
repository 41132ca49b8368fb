package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"telco-rewards/internal/model"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

var supportedLanguages = map[string]bool{"en": true, "hi": true}

// ProfileInput carries an optional change to each editable profile field.
type ProfileInput struct {
	Name       *string `json:"name"`
	Email      *string `json:"email"`
	Avatar     *string `json:"avatar"`
	Language   *string `json:"language"`
	TTSEnabled *bool   `json:"tts_enabled"`
}

// Summary is a user together with their rank and recent journal.
type Summary struct {
	User     *model.User          `json:"user"`
	Position int                  `json:"position"`
	Recent   []*model.LedgerEntry `json:"recent"`
}

// ProfileService reads and edits the non-ledger parts of an account.
type ProfileService struct {
	users       UserStore
	journal     JournalStore
	leaderboard LeaderboardStore
}

// NewProfileService creates a new ProfileService instance.
func NewProfileService(users UserStore, journal JournalStore, leaderboard LeaderboardStore) *ProfileService {
	return &ProfileService{
		users:       users,
		journal:     journal,
		leaderboard: leaderboard,
	}
}

// Profile returns the user with badges, completed activities and perks.
func (s *ProfileService) Profile(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return u, nil
}

// UserByTelegram returns the user linked to a Telegram account.
func (s *ProfileService) UserByTelegram(ctx context.Context, telegramID int64) (*model.User, error) {
	u, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return u, nil
}

// Summary loads the profile, rank and recent journal concurrently.
func (s *ProfileService) Summary(ctx context.Context, userID string, recent int) (*Summary, error) {
	var sum Summary

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.Profile(gctx, userID)
		sum.User = u
		return err
	})
	g.Go(func() error {
		pos, err := s.leaderboard.Position(gctx, userID)
		sum.Position = pos
		return mapStoreErr(err)
	})
	g.Go(func() error {
		entries, err := s.History(gctx, userID, recent)
		sum.Recent = entries
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &sum, nil
}

// UpdateProfile validates and applies profile edits.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*model.User, error) {
	var upd model.ProfileUpdate

	if in.Name != nil {
		name, err := normalizeName(*in.Name)
		if err != nil {
			return nil, err
		}
		upd.Name = &name
	}
	if in.Email != nil {
		email, err := normalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		upd.Email = &email
	}
	if in.Avatar != nil {
		avatar := strings.TrimSpace(*in.Avatar)
		if err := validateURL(avatar); err != nil {
			return nil, err
		}
		upd.Avatar = &avatar
	}
	if in.Language != nil {
		lang := strings.ToLower(strings.TrimSpace(*in.Language))
		if !supportedLanguages[lang] {
			return nil, invalidf("unsupported language %q", *in.Language)
		}
		upd.Language = &lang
	}
	upd.TTSEnabled = in.TTSEnabled

	if upd.Empty() {
		return s.Profile(ctx, userID)
	}

	u, err := s.users.UpdateProfile(ctx, userID, upd)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	log.Info().Str("user_id", userID).Msg("Profile updated")
	return u, nil
}

// DeleteAccount removes the user and everything they own.
func (s *ProfileService) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.users.Delete(ctx, userID); err != nil {
		return mapStoreErr(err)
	}
	log.Info().Str("user_id", userID).Msg("Account deleted")
	return nil
}

// History returns the user's journal, newest first.
func (s *ProfileService) History(ctx context.Context, userID string, limit int) ([]*model.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.journal.ListByUser(ctx, userID, limit)
}
