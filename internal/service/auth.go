package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"telco-rewards/internal/config"
	"telco-rewards/internal/model"
	"telco-rewards/internal/repository"
)

const (
	minNameLength     = 2
	maxNameLength     = 50
	minPasswordLength = 6
	defaultLanguage   = "en"
	avatarBaseURL     = "https://api.dicebear.com/7.x/avataaars/svg?seed="
)

// RegisterInput holds the fields accepted at sign-up.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Avatar   string `json:"avatar"`
}

// AuthResult is a user together with a freshly issued access token.
type AuthResult struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// Claims identifies the caller behind a verified token.
type Claims struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// AuthService handles registration, login and session tokens.
// Tokens are HS256 JWTs; each one is also stored server-side by its SHA-256
// hash so it can be revoked before it expires.
type AuthService struct {
	users         UserStore
	sessions      SessionStore
	progression   *ProgressionService
	secret        []byte
	ttl           time.Duration
	bcryptCost    int
	welcomeTokens int64
}

// NewAuthService creates a new AuthService instance.
func NewAuthService(
	users UserStore,
	sessions SessionStore,
	progression *ProgressionService,
	cfg config.AuthConfig,
	welcomeTokens int64,
) *AuthService {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &AuthService{
		users:         users,
		sessions:      sessions,
		progression:   progression,
		secret:        []byte(cfg.JWTSecret),
		ttl:           ttl,
		bcryptCost:    cost,
		welcomeTokens: welcomeTokens,
	}
}

// Register creates an account with the welcome balance and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	name, err := normalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLength {
		return nil, invalidf("password must be at least %d characters", minPasswordLength)
	}
	avatar := strings.TrimSpace(in.Avatar)
	if avatar == "" {
		avatar = DefaultAvatar(name)
	} else if err := validateURL(avatar); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.progression.Now()
	user := &model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Avatar:       avatar,
		Tokens:       s.welcomeTokens,
		XP:           0,
		Level:        1,
		Streak:       1,
		LastLogin:    now,
		Language:     defaultLanguage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	log.Info().Str("user_id", user.ID).Msg("User registered")
	return s.issue(ctx, user)
}

// Login verifies credentials, runs the daily check-in and issues a token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.verifyCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}

	res, err := s.progression.CheckIn(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check in: %w", err)
	}
	return s.issue(ctx, res.User)
}

// Logout revokes the token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	err := s.sessions.Delete(ctx, HashToken(token))
	if errors.Is(err, repository.ErrSessionNotFound) {
		return ErrUnauthorized
	}
	return err
}

// Refresh swaps a valid token for a new one.
func (s *AuthService) Refresh(ctx context.Context, token string) (*AuthResult, error) {
	claims, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if err := s.sessions.Delete(ctx, HashToken(token)); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, err
	}
	return s.issue(ctx, user)
}

// Authenticate verifies the token signature and expiry and checks that the
// session has not been revoked.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*Claims, error) {
	var rc jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &rc, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.progression.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrUnauthorized
	}

	sess, err := s.sessions.GetValid(ctx, HashToken(token), s.progression.Now())
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if sess.UserID != rc.Subject {
		return nil, ErrUnauthorized
	}

	return &Claims{UserID: sess.UserID, SessionID: sess.ID, ExpiresAt: sess.ExpiresAt}, nil
}

// LinkTelegram binds a Telegram account to the user with the given
// credentials.
func (s *AuthService) LinkTelegram(ctx context.Context, email, password string, telegramID int64) (*model.User, error) {
	user, err := s.verifyCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.users.LinkTelegram(ctx, user.ID, telegramID); err != nil {
		return nil, mapStoreErr(err)
	}
	tid := telegramID
	user.TelegramID = &tid

	log.Info().Str("user_id", user.ID).Int64("telegram_id", telegramID).Msg("Telegram account linked")
	return user, nil
}

// CleanupSessions removes expired sessions.
func (s *AuthService) CleanupSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.progression.Now())
}

func (s *AuthService) verifyCredentials(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *AuthService) issue(ctx context.Context, user *model.User) (*AuthResult, error) {
	now := s.progression.Now()
	expires := now.Add(s.ttl)
	sessionID := uuid.NewString()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user.ID,
		ID:        sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	err = s.sessions.Create(ctx, &model.Session{
		ID:        sessionID,
		UserID:    user.ID,
		TokenHash: HashToken(token),
		ExpiresAt: expires,
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, Token: token, ExpiresAt: expires}, nil
}

// HashToken returns the hex SHA-256 of a token, the form sessions are
// stored in.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// DefaultAvatar returns a generated avatar URL seeded from the name.
func DefaultAvatar(name string) string {
	seed := slug.Make(name)
	if seed == "" {
		seed = "member"
	}
	return avatarBaseURL + seed
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < minNameLength || n > maxNameLength {
		return "", invalidf("name must be between %d and %d characters", minNameLength, maxNameLength)
	}
	return name, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalidf("invalid email address")
	}
	return email, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalidf("avatar must be an http(s) URL")
	}
	return nil
}
