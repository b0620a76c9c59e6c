package controllers

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogdorcult/burninator/app/models"
	"github.com/trogdorcult/burninator/internal/pkg/cache"
	"github.com/trogdorcult/burninator/internal/pkg/idempotency"
	"github.com/trogdorcult/burninator/internal/pkg/imagegen"
	"github.com/trogdorcult/burninator/internal/pkg/ingestion"
	"github.com/trogdorcult/burninator/internal/pkg/leaderboard"
	"github.com/trogdorcult/burninator/internal/pkg/mentions"
	"github.com/trogdorcult/burninator/internal/pkg/middleware"
	"github.com/trogdorcult/burninator/internal/pkg/security"
	"github.com/trogdorcult/burninator/internal/pkg/stats"
	"github.com/trogdorcult/burninator/internal/pkg/walletauth"
)

const webhookSecret = "whsec_test"

type harness struct {
	app    *fiber.App
	api    *API
	store  *store
	events *idempotency.MemoryRepository
	tokens *security.SessionTokens
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := newStore()
	c := cache.NewMemory()
	events := idempotency.NewMemoryRepository()
	board := leaderboard.NewService(st, c, time.Minute)
	ledger := idempotency.NewLedger(c, events, models.IngestionSourceTwitter, models.EventTypeTwitterMention)
	tokens, err := security.NewSessionTokens("controller-test-secret-0123456789", time.Hour)
	require.NoError(t, err)
	nonces := walletauth.NewNonceStore(c)

	api := &API{
		Accounts:      st,
		Mentions:      st,
		Nonces:        nonces,
		Auth:          walletauth.NewAuthenticator(nonces),
		Tokens:        tokens,
		Pipeline:      ingestion.NewPipeline(st, ledger, board),
		WebhookSecret: webhookSecret,
		Leaderboard:   board,
		Twitter: fakeTwitter{users: map[string]*mentions.User{
			"trogdor_fan": {ID: "1001", UserName: "trogdor_fan"},
			"strongbad":   {ID: "1002", UserName: "strongbad"},
		}},
		Stats: stats.NewService(zeroCounter{}, nil),
		Cache: c,
	}

	app := fiber.New()
	app.Use(middleware.UserContextMiddleware(tokens))
	v1 := app.Group("/api/v1")
	v1.Get("/auth/nonce", api.HandleNonce)
	v1.Post("/auth/signin", api.HandleSignIn)
	v1.Get("/webhooks/twitter", api.HandleWebhookChallenge)
	v1.Post("/webhooks/twitter", api.HandleWebhook)
	v1.Post("/cron/fetch-mentions", api.HandleFetchMentions)
	v1.Get("/leaderboard", api.HandleLeaderboard)
	v1.Get("/leaderboard/top", api.HandleTop)
	v1.Get("/stats", api.HandleStats)
	me := v1.Group("/me", middleware.RequireAuth)
	me.Get("/", api.HandleProfile)
	me.Get("/rank", api.HandleMyRank)
	me.Put("/username", api.HandleUpdateUsername)
	me.Post("/twitter", api.HandleLinkTwitter)
	me.Delete("/twitter", api.HandleUnlinkTwitter)
	v1.Post("/generator", middleware.RequireAuth, api.HandleGenerate)
	v1.Get("/generator/history", middleware.RequireAuth, api.HandleHistory)

	return &harness{app: app, api: api, store: st, events: events, tokens: tokens}
}

type zeroCounter struct{ err error }

func (z zeroCounter) Count(context.Context) (stats.Global, error) {
	return stats.Global{CultMembers: 3, TotalOfferings: 120, ImagesGenerated: 7}, z.err
}

func (h *harness) do(t *testing.T, method, path string, body any, token string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return out
}

// signIn registers a wallet through the real challenge flow.
func (h *harness) signIn(t *testing.T) (string, uint) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	_, body := h.do(t, "GET", "/api/v1/auth/nonce", nil, "")
	message := "Sign in to the Cult of Trogdor\nnonce: " + body["nonce"].(string)
	status, body := h.do(t, "POST", "/api/v1/auth/signin", walletauth.Credentials{
		PublicKey: base58.Encode(pub),
		Signature: base58.Encode(ed25519.Sign(priv, []byte(message))),
		Message:   message,
	}, "")
	require.Equal(t, fiber.StatusOK, status, body)
	account := body["account"].(map[string]any)
	return body["token"].(string), uint(account["id"].(float64))
}

func TestSignInFlow(t *testing.T) {
	h := newHarness(t)
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	_, body := h.do(t, "GET", "/api/v1/auth/nonce", nil, "")
	nonce, _ := body["nonce"].(string)
	require.NotEmpty(t, nonce)

	message := "Burninate!\nnonce: " + nonce
	cred := walletauth.Credentials{
		PublicKey: base58.Encode(pub),
		Signature: base58.Encode(ed25519.Sign(priv, []byte(message))),
		Message:   message,
	}

	forged := cred
	forged.Signature = base58.Encode(ed25519.Sign(priv, []byte("something else")))
	status, body := h.do(t, "POST", "/api/v1/auth/signin", forged, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "invalid_signature", body["error"])

	status, body = h.do(t, "POST", "/api/v1/auth/signin", cred, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["created"])
	token := body["token"].(string)

	status, body = h.do(t, "POST", "/api/v1/auth/signin", cred, "")
	assert.Equal(t, fiber.StatusUnauthorized, status, "nonce is single-use")
	assert.Equal(t, "invalid_nonce", body["error"])

	status, _ = h.do(t, "GET", "/api/v1/me/", nil, token)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = h.do(t, "POST", "/api/v1/auth/signin", map[string]string{"publicKey": ""}, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func webhookRequest(body []byte, signature string) *http.Request {
	ts := "1734270000"
	req := httptest.NewRequest("POST", "/api/v1/webhooks/twitter", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(mentions.TimestampHeader, ts)
	if signature == "" {
		signature = mentions.SignWebhook(body, ts, webhookSecret)
	}
	req.Header.Set(mentions.SignatureHeader, signature)
	return req
}

func TestSignInConcurrentRequests(t *testing.T) {
	h := newHarness(t)
	raw, err := json.Marshal(walletauth.Credentials{PublicKey: "short"})
	require.NoError(t, err)

	const n = 16
	statuses := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest("POST", "/api/v1/auth/signin", bytes.NewReader(raw))
			req.Header.Set("Content-Type", "application/json")
			resp, err := h.app.Test(req, -1)
			if err != nil {
				statuses <- 0
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	for status := range statuses {
		assert.Equal(t, fiber.StatusUnauthorized, status)
	}
}

func TestWebhookCreditsOnce(t *testing.T) {
	h := newHarness(t)
	token, id := h.signIn(t)
	status, _ := h.do(t, "POST", "/api/v1/me/twitter", map[string]string{"handle": "@trogdor_fan"}, token)
	require.Equal(t, fiber.StatusOK, status)

	body := []byte(`{"id":"tw-1","text":"All hail @trogdorcult, burninating the countryside","author_id":"1001","created_at":"2024-12-15T10:00:00Z","public_metrics":{"like_count":10,"retweet_count":2,"reply_count":1,"quote_count":0}}`)

	for i := 0; i < 2; i++ {
		resp, err := h.app.Test(webhookRequest(body, ""), -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		out := decode(t, resp)
		if i == 1 {
			assert.Equal(t, true, out["cached"])
		}
	}

	account, err := h.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, h.store.mentions, 1)
	assert.Equal(t, int64(h.store.mentions["tw-1"].PointsAwarded), account.TotalPoints)
	assert.Positive(t, account.TotalPoints)
}

func TestWebhookRejectsTamperedSignature(t *testing.T) {
	h := newHarness(t)
	body := []byte(`{"id":"tw-2","text":"hi","author_id":"1001"}`)

	resp, err := h.app.Test(webhookRequest(body, "deadbeef"), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest("POST", "/api/v1/webhooks/twitter", bytes.NewReader(body))
	resp, err = h.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	assert.Empty(t, h.store.mentions)
	assert.Zero(t, h.events.Len())
}

func TestWebhookUnknownAuthorIsNotAnError(t *testing.T) {
	h := newHarness(t)
	body := []byte(`{"id":"tw-3","text":"who am i","author_id":"9999"}`)

	resp, err := h.app.Test(webhookRequest(body, ""), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode(t, resp)["userNotFound"])
	assert.Empty(t, h.store.mentions)
	assert.Equal(t, 1, h.events.Len())
}

func TestWebhookChallenge(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, "GET", "/api/v1/webhooks/twitter?crc_token=abc", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, mentions.CRCResponseToken("abc", webhookSecret), body["response_token"])

	status, _ = h.do(t, "GET", "/api/v1/webhooks/twitter", nil, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestFetchMentions(t *testing.T) {
	h := newHarness(t)
	token, _ := h.signIn(t)
	status, _ := h.do(t, "POST", "/api/v1/me/twitter", map[string]string{"handle": "strongbad"}, token)
	require.Equal(t, fiber.StatusOK, status)

	status, _ = h.do(t, "POST", "/api/v1/cron/fetch-mentions", nil, "")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)

	h.api.Source = fakeSource{tweets: []mentions.Tweet{
		{ID: "p-1", Text: "burninate", Author: &mentions.Author{ID: "1002"}, CreatedAt: "2024-12-15T10:00:00Z"},
		{ID: "p-2", Text: "peasants", Author: &mentions.Author{ID: "4242"}, CreatedAt: "2024-12-15T10:01:00Z"},
	}}
	status, body := h.do(t, "POST", "/api/v1/cron/fetch-mentions", nil, "")
	require.Equal(t, fiber.StatusOK, status, body)
	summary := body["summary"].(map[string]any)
	assert.EqualValues(t, 2, summary["total"])
	assert.EqualValues(t, 1, summary["processed"])
	assert.EqualValues(t, 1, summary["skipped"])

	h.api.Source = fakeSource{err: errors.New("timeout")}
	status, _ = h.do(t, "POST", "/api/v1/cron/fetch-mentions", nil, "")
	assert.Equal(t, fiber.StatusBadGateway, status)
}

func TestLeaderboardEndpoints(t *testing.T) {
	h := newHarness(t)
	h.store.accounts[1] = &models.Account{ID: 1, WalletAddress: "a", TotalPoints: 10}
	h.store.accounts[2] = &models.Account{ID: 2, WalletAddress: "b", TotalPoints: 90}
	h.store.accounts[3] = &models.Account{ID: 3, WalletAddress: "c", TotalPoints: 10}

	status, body := h.do(t, "GET", "/api/v1/leaderboard?period=alltime&page=1&limit=50", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	entries := body["entries"].([]any)
	require.Len(t, entries, 3)
	var ids []float64
	for _, e := range entries {
		ids = append(ids, e.(map[string]any)["accountId"].(float64))
	}
	assert.Equal(t, []float64{2, 1, 3}, ids)

	for _, q := range []string{"period=yearly", "limit=101", "page=0", "page=abc"} {
		status, _ = h.do(t, "GET", "/api/v1/leaderboard?"+q, nil, "")
		assert.Equal(t, fiber.StatusUnprocessableEntity, status, q)
	}

	status, body = h.do(t, "GET", "/api/v1/leaderboard/top", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["entries"], 3)
}

func TestLinkTwitterErrors(t *testing.T) {
	h := newHarness(t)
	first, _ := h.signIn(t)
	second, _ := h.signIn(t)

	cases := []struct {
		name   string
		token  string
		handle string
		status int
		code   string
	}{
		{"invalid handle", first, "not a handle!", fiber.StatusUnprocessableEntity, "validation_failed"},
		{"too long", first, "abcdefghijklmnop", fiber.StatusUnprocessableEntity, "validation_failed"},
		{"unknown user", first, "nobody_here", fiber.StatusNotFound, "not_found"},
		{"first link", first, "trogdor_fan", fiber.StatusOK, ""},
		{"claimed by another wallet", second, "@trogdor_fan", fiber.StatusConflict, "already_linked"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := h.do(t, "POST", "/api/v1/me/twitter", map[string]string{"handle": tc.handle}, tc.token)
			assert.Equal(t, tc.status, status)
			if tc.code != "" {
				assert.Equal(t, tc.code, body["error"])
			}
		})
	}

	status, _ := h.do(t, "DELETE", "/api/v1/me/twitter", nil, first)
	require.Equal(t, fiber.StatusOK, status)
	status, _ = h.do(t, "POST", "/api/v1/me/twitter", map[string]string{"handle": "trogdor_fan"}, second)
	assert.Equal(t, fiber.StatusOK, status, "unlinked handle can be claimed again")
}

func TestProfileAndUsername(t *testing.T) {
	h := newHarness(t)
	token, id := h.signIn(t)

	status, _ := h.do(t, "PUT", "/api/v1/me/username", map[string]string{"username": "x"}, token)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, body := h.do(t, "PUT", "/api/v1/me/username", map[string]string{"username": "  Strong Bad  "}, token)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Strong Bad", body["account"].(map[string]any)["username"])

	h.store.mentions["m1"] = &models.Mention{ID: 1, TweetID: "m1", AccountID: id, QualityScore: 92, PointsAwarded: 92, PostedAt: time.Now()}
	h.store.accounts[id].TotalPoints = 92

	status, body = h.do(t, "GET", "/api/v1/me/", nil, token)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["rank"])
	assert.Equal(t, "Strong Bad", body["displayName"])
	recent := body["recentMentions"].([]any)
	require.Len(t, recent, 1)
	assert.Equal(t, "legendary", recent[0].(map[string]any)["tier"])

	status, body = h.do(t, "GET", "/api/v1/me/rank", nil, token)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["rank"])
	assert.EqualValues(t, 92, body["score"])

	status, _ = h.do(t, "GET", "/api/v1/me/", nil, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

type fakeGenerator struct {
	err  error
	seen []string
}

func (f *fakeGenerator) Generate(_ context.Context, accountID uint, prompt string) (*models.GeneratedImage, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.seen = append(f.seen, prompt)
	return &models.GeneratedImage{ID: 5, AccountID: accountID, Prompt: prompt, ImageURL: "https://img/5.png"}, nil
}

func (f *fakeGenerator) History(_ context.Context, accountID uint, _, _ int) ([]models.GeneratedImage, bool, error) {
	return []models.GeneratedImage{{ID: 5, AccountID: accountID}}, false, nil
}

func TestGenerator(t *testing.T) {
	h := newHarness(t)
	token, _ := h.signIn(t)

	status, _ := h.do(t, "POST", "/api/v1/generator", map[string]string{"prompt": "trogdor"}, token)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)

	gen := &fakeGenerator{}
	h.api.Generator = gen
	status, body := h.do(t, "POST", "/api/v1/generator", map[string]string{"prompt": "trogdor on a hill"}, token)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "https://img/5.png", body["imageUrl"])

	status, body = h.do(t, "GET", "/api/v1/generator/history", nil, token)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["hasMore"])

	gen.err = imagegen.ErrRateLimited
	status, body = h.do(t, "POST", "/api/v1/generator", map[string]string{"prompt": "again"}, token)
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Equal(t, "rate_limited", body["error"])

	gen.err = imagegen.ErrInvalidPrompt
	status, _ = h.do(t, "POST", "/api/v1/generator", map[string]string{"prompt": "x"}, token)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, "GET", "/api/v1/stats", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 3, body["cultMembers"])

	h.api.Stats = stats.NewService(zeroCounter{err: errors.New("db down")}, nil)
	status, body = h.do(t, "GET", "/api/v1/stats", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 0, body["cultMembers"])
}
