package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"telco-rewards/internal/config"
	"telco-rewards/internal/pkg/lock"
	"telco-rewards/internal/service"
)

type testAPI struct {
	app *fiber.App
}

func newTestAPI(t *testing.T, health HealthFunc) *testAPI {
	t.Helper()

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:  "test-secret",
			TokenTTL:   time.Hour,
			BcryptCost: bcrypt.MinCost,
		},
		Leaderboard: config.LeaderboardConfig{DefaultLimit: 10, MaxLimit: 50, CacheSize: 8},
		Admin:       config.AdminConfig{Emails: []string{"admin@example.com"}},
	}

	stores := service.MemoryStores()
	progression := service.NewProgressionService(stores.Users, lock.NewUserLock())
	board := service.NewLeaderboardService(stores.Leaderboard, stores.Journal, cfg.Leaderboard, time.UTC, nil)
	progression.OnApplied(board.Invalidate)

	srv := NewServer(Deps{
		Config:      cfg,
		Auth:        service.NewAuthService(stores.Users, stores.Sessions, progression, cfg.Auth, 100),
		Profile:     service.NewProfileService(stores.Users, stores.Journal, stores.Leaderboard),
		Progression: progression,
		Leaderboard: board,
		Health:      health,
		Version:     "test",
	})
	return &testAPI{app: srv.App()}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (a *testAPI) register(t *testing.T, name, email string) (string, string) {
	t.Helper()
	status, body := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": name, "email": email, "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, status, body)
	user := body["user"].(map[string]any)
	return body["token"].(string), user["id"].(string)
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestAPI_AuthFlow(t *testing.T) {
	a := newTestAPI(t, nil)
	token, _ := a.register(t, "Asha", "asha@example.com")

	status, body := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": "Asha", "email": "asha@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "EMAIL_TAKEN", errorCode(body))

	status, body = a.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": "A", "email": "x@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(body))

	status, body = a.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "asha@example.com", "password": "nope",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCode(body))

	status, body = a.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	user := body["user"].(map[string]any)
	assert.Equal(t, float64(100), user["tokens"])
	assert.Equal(t, []any{}, user["completed_activities"])
	assert.NotContains(t, user, "PasswordHash")
	assert.Equal(t, float64(1), body["position"])
	recent := body["recent"].([]any)
	require.Len(t, recent, 1)
	assert.Equal(t, "welcome", recent[0].(map[string]any)["kind"])

	status, _ = a.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = a.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "asha@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, status)
	second := body["token"].(string)

	status, _ = a.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = a.do(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = a.do(t, http.MethodPost, "/api/auth/refresh", second, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEqual(t, second, body["token"])
}

func TestAPI_ActivitiesAndPerks(t *testing.T) {
	a := newTestAPI(t, nil)
	token, _ := a.register(t, "Asha", "asha@example.com")

	status, body := a.do(t, http.MethodPost, "/api/users/activities/quiz-1/finish", token, map[string]any{
		"score": 900, "perfect": false,
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, float64(150), body["user"].(map[string]any)["tokens"])
	assert.Len(t, body["newBadges"], 2)

	status, body = a.do(t, http.MethodPost, "/api/users/activities/quiz-1/finish", token, map[string]any{"score": 1})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ACTIVITY_ALREADY_COMPLETED", errorCode(body))

	status, body = a.do(t, http.MethodPost, "/api/users/activities", token, map[string]any{
		"activity_id": "custom-1", "tokens_earned": 75, "xp_earned": 40,
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, float64(225), body["user"].(map[string]any)["tokens"])

	status, body = a.do(t, http.MethodPost, "/api/users/activities", token, map[string]any{
		"activity_id": "custom-2", "tokens_earned": -5, "xp_earned": 0,
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = a.do(t, http.MethodPost, "/api/users/activities", token, map[string]any{
		"activity_id": strings.Repeat("a", 101), "tokens_earned": 5, "xp_earned": 5,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(body))

	status, body = a.do(t, http.MethodPost, "/api/users/perks", token, map[string]any{"perk_id": "premium-subscription"})
	assert.Equal(t, http.StatusPreconditionFailed, status)
	assert.Equal(t, "INSUFFICIENT_TOKENS", errorCode(body))

	status, body = a.do(t, http.MethodPost, "/api/users/perks", token, map[string]any{"perk_id": "data-1gb", "cost": 1})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, float64(125), body["user"].(map[string]any)["tokens"])
	assert.Equal(t, float64(100), body["perk"].(map[string]any)["cost"])

	status, body = a.do(t, http.MethodGet, "/api/users/perks", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["perks"], 1)

	status, body = a.do(t, http.MethodGet, "/api/users/activities", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["activities"], 2)

	status, body = a.do(t, http.MethodGet, "/api/users/ledger?limit=10", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["entries"], 4)
}

func TestAPI_BadgesAndAdmin(t *testing.T) {
	a := newTestAPI(t, nil)
	userToken, userID := a.register(t, "Asha", "asha@example.com")
	adminToken, _ := a.register(t, "Admin", "admin@example.com")

	status, body := a.do(t, http.MethodPost, "/api/users/badges", userToken, map[string]any{
		"badge_id": "explorer", "badge_name": "Explorer",
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "common", body["badge"].(map[string]any)["rarity"])

	status, body = a.do(t, http.MethodPost, "/api/users/badges", userToken, map[string]any{
		"badge_id": "explorer", "badge_name": "Explorer",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "BADGE_ALREADY_EARNED", errorCode(body))

	status, _ = a.do(t, http.MethodPost, "/api/admin/users/"+userID+"/badges", userToken, map[string]any{"badge_id": "welcome"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = a.do(t, http.MethodPost, "/api/admin/users/"+userID+"/badges", adminToken, map[string]any{"badge_id": "no-such"})
	assert.Equal(t, http.StatusNotFound, status)

	status, body = a.do(t, http.MethodPost, "/api/admin/users/"+userID+"/badges", adminToken, map[string]any{"badge_id": "token-collector"})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "legendary", body["badge"].(map[string]any)["rarity"])

	status, body = a.do(t, http.MethodGet, "/api/users/badges", userToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["badges"], 2)
}

func TestAPI_ProfileAndAccount(t *testing.T) {
	a := newTestAPI(t, nil)
	token, _ := a.register(t, "Asha", "asha@example.com")
	a.register(t, "Ravi", "ravi@example.com")

	status, body := a.do(t, http.MethodPut, "/api/users/profile", token, map[string]any{
		"language": "hi", "tts_enabled": true,
	})
	require.Equal(t, http.StatusOK, status, body)
	user := body["user"].(map[string]any)
	assert.Equal(t, "hi", user["language"])
	assert.Equal(t, true, user["tts_enabled"])

	status, _ = a.do(t, http.MethodPut, "/api/users/profile", token, map[string]any{"email": "ravi@example.com"})
	assert.Equal(t, http.StatusConflict, status)

	status, body = a.do(t, http.MethodPut, "/api/users/streak", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["streak"])

	status, _ = a.do(t, http.MethodDelete, "/api/users/account", token, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = a.do(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAPI_LeaderboardAndCatalog(t *testing.T) {
	a := newTestAPI(t, nil)
	token, id := a.register(t, "Asha", "asha@example.com")
	_, _ = a.register(t, "Ravi", "ravi@example.com")

	status, body := a.do(t, http.MethodPost, "/api/users/activities/simulator-1/finish", token, map[string]any{"score": 10})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = a.do(t, http.MethodGet, "/api/leaderboard?limit=1", token, nil)
	require.Equal(t, http.StatusOK, status)
	entries := body["leaderboard"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].(map[string]any)["id"])
	assert.Equal(t, true, body["pagination"].(map[string]any)["hasMore"])
	assert.Equal(t, float64(1), body["userPosition"].(map[string]any)["position"])

	status, body = a.do(t, http.MethodGet, "/api/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, body["userPosition"])

	status, _ = a.do(t, http.MethodGet, "/api/leaderboard/position", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = a.do(t, http.MethodGet, "/api/leaderboard/position?userId=ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, body = a.do(t, http.MethodGet, "/api/leaderboard/position?userId="+id, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["nearby"], 2)

	status, body = a.do(t, http.MethodGet, "/api/catalog/activities?category=Education", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["activities"])

	status, body = a.do(t, http.MethodGet, "/api/catalog/perks", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["perks"], 4)

	status, body = a.do(t, http.MethodGet, "/api/catalog/badges", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["badges"])
}

func TestAPI_Health(t *testing.T) {
	status, body := newTestAPI(t, nil).do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body["status"])

	failing := func(context.Context) (map[string]any, error) { return nil, errors.New("down") }
	status, body = newTestAPI(t, failing).do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "DEGRADED", body["status"])
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{service.ErrConcurrentUpdate, http.StatusConflict},
		{service.ErrStorageUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("failed to apply delta: %w: value too long", service.ErrConstraintViolation), http.StatusUnprocessableEntity},
		{service.ErrPerkUnavailable, http.StatusBadRequest},
		{service.ErrPerkNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
		{fiber.ErrForbidden, http.StatusForbidden},
	}
	for _, tt := range tests {
		status, _, _ := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
