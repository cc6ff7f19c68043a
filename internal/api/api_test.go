package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MJE43/raid-extract/internal/catalog"
	"github.com/MJE43/raid-extract/internal/fairness"
	"github.com/MJE43/raid-extract/internal/rules"
	"github.com/MJE43/raid-extract/internal/store"
	"github.com/MJE43/raid-extract/internal/validate"
)

const testSecret = "0123456789abcdef-test"

type testEnv struct {
	handler http.Handler
	tokens  *Tokens
	db      *store.SQLiteDB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	cat, err := catalog.Default()
	require.NoError(t, err)

	tokens := NewTokens(testSecret, "raid-test")
	srv := NewServer(db, cat, tokens, nil, WithAllowedOrigins([]string{"https://raid.example"}))
	return &testEnv{handler: srv.Routes(), tokens: tokens, db: db}
}

func (e *testEnv) token(t *testing.T, player string) string {
	t.Helper()
	tok, err := e.tokens.Issue(player, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func winningClaim() validate.Claim {
	return validate.Claim{
		Success:        true,
		SolAmount:      rules.ComputeReward(1000, 0.026, false, false, false),
		Points:         1000,
		ElapsedSeconds: 20,
		Difficulty:     rules.Medium,
		EntryFee:       0.026,
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[HealthCheckResponse](t, w)
	assert.Equal(t, HealthStatusHealthy, resp.Status)
	assert.Contains(t, resp.Checks, "database")
	assert.Contains(t, resp.Checks, "catalog")
	assert.NotEmpty(t, w.Header().Get("X-Engine-Version"))

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/ready", "", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/live", "", nil).Code)
}

func TestReadinessFailsWhenDatabaseClosed(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Close())

	w := env.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRulesEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/rules", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[RulesResponse](t, w)
	assert.Len(t, resp.Difficulties, 4)
	require.NotNil(t, resp.Catalog)
	assert.NotEmpty(t, resp.Catalog.Gear)
	assert.Equal(t, rules.MaxDuration, resp.Limits.MaxDuration)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-token"},
		{"wrong secret", func() string {
			tok, err := NewTokens("another-secret-value!", "raid-test").Issue("alice", time.Hour)
			require.NoError(t, err)
			return tok
		}()},
		{"wrong issuer", func() string {
			tok, err := NewTokens(testSecret, "someone-else").Issue("alice", time.Hour)
			require.NoError(t, err)
			return tok
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/seeds", tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, ErrTypeUnauthorized, w.Header().Get("X-Error-Type"))
			assert.Equal(t, string(CategoryAuth), w.Header().Get("X-Error-Category"))
		})
	}
}

func TestTokenExpiry(t *testing.T) {
	tokens := NewTokens(testSecret, "raid-test")
	issued := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return issued }

	tok, err := tokens.Issue("alice", time.Minute)
	require.NoError(t, err)

	player, err := tokens.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", player)

	tokens.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = tokens.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Issue(" ", time.Minute)
	assert.Error(t, err)
}

func TestSeedAndSettlementFlow(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "alice")

	w := env.do(t, http.MethodPost, "/api/v1/seeds", tok, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	commitment := decode[fairness.Commitment](t, w)
	require.NotEmpty(t, commitment.SeedID)

	path := "/api/v1/raids/" + commitment.SeedID + "/result"
	w = env.do(t, http.MethodPost, path, tok, winningClaim())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	verdict := decode[fairness.Verdict](t, w)
	assert.True(t, verdict.Accepted)
	assert.True(t, verdict.AuthoritativeSol.IsPositive())
	assert.True(t, fairness.VerifyCommitment(verdict.RevealedSeed, commitment.CommitmentHash))

	// the seed settles once
	w = env.do(t, http.MethodPost, path, tok, winningClaim())
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ErrTypeSeedConsumed, decode[EngineError](t, w).Type)

	w = env.do(t, http.MethodGet, "/api/v1/profile", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decode[store.Profile](t, w)
	assert.Equal(t, "alice", profile.PlayerID)
	assert.True(t, profile.Balance.Equal(verdict.AuthoritativeSol))
	assert.Equal(t, 1, profile.TotalRaids)

	w = env.do(t, http.MethodGet, "/api/v1/history?limit=5", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[HistoryResponse](t, w)
	require.Len(t, history.Raids, 1)
	assert.Equal(t, commitment.SeedID, history.Raids[0].SeedID)

	w = env.do(t, http.MethodGet, "/api/v1/feed", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	feed := decode[FeedResponse](t, w)
	require.Len(t, feed.Entries, 1)
	assert.Equal(t, store.FeedExtracted, feed.Entries[0].Kind)
}

func TestRejectedClaimStillRevealsSeed(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "bob")

	commitment := decode[fairness.Commitment](t, env.do(t, http.MethodPost, "/api/v1/seeds", tok, nil))

	claim := winningClaim()
	claim.ElapsedSeconds = 2
	w := env.do(t, http.MethodPost, "/api/v1/raids/"+commitment.SeedID+"/result", tok, claim)
	require.Equal(t, http.StatusOK, w.Code)
	verdict := decode[fairness.Verdict](t, w)
	assert.False(t, verdict.Accepted)
	assert.Equal(t, validate.CodeTooShort, verdict.RejectionCode)
	assert.True(t, verdict.AuthoritativeSol.IsZero())
	assert.True(t, fairness.VerifyCommitment(verdict.RevealedSeed, commitment.CommitmentHash))

	profile := decode[store.Profile](t, env.do(t, http.MethodGet, "/api/v1/profile", tok, nil))
	assert.True(t, profile.Balance.IsZero())
}

func TestSubmitForeignOrUnknownSeed(t *testing.T) {
	env := newTestEnv(t)
	alice := env.token(t, "alice")
	mallory := env.token(t, "mallory")

	commitment := decode[fairness.Commitment](t, env.do(t, http.MethodPost, "/api/v1/seeds", alice, nil))

	w := env.do(t, http.MethodPost, "/api/v1/raids/"+commitment.SeedID+"/result", mallory, winningClaim())
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrTypeSeedNotFound, w.Header().Get("X-Error-Type"))

	w = env.do(t, http.MethodPost, "/api/v1/raids/does-not-exist/result", alice, winningClaim())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClaimBodyValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"bad difficulty", map[string]any{"success": true, "solAmount": 0.1, "points": 10, "elapsedSeconds": 10, "difficulty": "INSANE", "entryFee": 0.01}, "difficulty"},
		{"zero entry fee", map[string]any{"success": true, "solAmount": 0.1, "points": 10, "elapsedSeconds": 10, "difficulty": "EASY", "entryFee": 0}, "entryFee"},
		{"negative points", map[string]any{"success": false, "points": -1, "elapsedSeconds": 10, "difficulty": "EASY", "entryFee": 0.01}, "points"},
		{"unknown field", map[string]any{"difficulty": "EASY", "entryFee": 0.01, "bonus": 9000}, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/raids/validate", "", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			engineErr := decode[EngineError](t, w)
			assert.Equal(t, ErrTypeValidation, engineErr.Type)
			assert.Equal(t, tt.field, engineErr.Context["field"])
		})
	}
}

func TestDryRunValidate(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/raids/validate", "", winningClaim())
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ValidateResponse](t, w)
	assert.True(t, resp.Valid)
	require.NotNil(t, resp.Award)
	assert.True(t, resp.Award.Sol.IsPositive())
	assert.LessOrEqual(t, resp.Band[0], resp.Band[1])
	assert.Equal(t, validate.MaxScore(20), resp.MaxScore)

	inflated := winningClaim()
	inflated.SolAmount = inflated.EntryFee * 50
	resp = decode[ValidateResponse](t, env.do(t, http.MethodPost, "/api/v1/raids/validate", "", inflated))
	assert.False(t, resp.Valid)
	require.NotNil(t, resp.Rejection)
	assert.Equal(t, validate.CodeInflatedPayout, resp.Rejection.Code)

	// dry runs never touch the ledger
	feed := decode[FeedResponse](t, env.do(t, http.MethodGet, "/api/v1/feed", "", nil))
	assert.Empty(t, feed.Entries)
}

func TestInvalidLimit(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/feed?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "limit", decode[EngineError](t, w).Context["field"])
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/seeds", nil)
	req.Header.Set("Origin", "https://raid.example")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://raid.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryHandler(t *testing.T) {
	eh := NewErrorHandler(zap.NewNop())
	h := eh.RecoveryHandler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, ErrTypeInternal, w.Header().Get("X-Error-Type"))
}

func TestErrorBuilder(t *testing.T) {
	err := NewError(ErrTypeSeedConsumed, "seed already settled").
		WithRequestID("req-1").
		WithContext("seed_id", "s1").
		WithCause(context.Canceled).
		Build()

	assert.Equal(t, "seed already settled", err.Error())
	assert.Equal(t, "req-1", err.RequestID)
	assert.Equal(t, "s1", err.Context["seed_id"])
	assert.Equal(t, context.Canceled.Error(), err.Context["cause"])
	assert.Equal(t, CategorySettlement, GetErrorCategory(err.Type))
	assert.Nil(t, NewError(ErrTypeInternal, "x").Build().Context)
}
