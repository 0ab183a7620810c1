package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typerush/internal/auth"
	"typerush/internal/config"
	"typerush/internal/model"
	"typerush/internal/payment"
	"typerush/internal/pkg/lock"
	"typerush/internal/realtime"
	"typerush/internal/service"
	"typerush/internal/service/servicetest"
)

const devUser = "user_dev"

type fixture struct {
	srv      *Server
	users    *servicetest.Users
	payments *servicetest.Payments
	checkout *servicetest.Checkout
	hooks    *payment.WebhookValidator
	hub      *realtime.Hub
	health   error
}

func newFixture(t *testing.T, cfg *config.ServerConfig) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = &config.ServerConfig{Addr: "127.0.0.1:0", RateLimit: 100, RateBurst: 100}
	}

	catalog, err := payment.NewCatalog(decimal.RequireFromString("0.99"), "usd")
	require.NoError(t, err)
	verifier, err := auth.NewVerifier(auth.Options{DevUserID: devUser})
	require.NoError(t, err)

	f := &fixture{
		users:    servicetest.NewUsers(),
		payments: servicetest.NewPayments(),
		checkout: &servicetest.Checkout{},
		hooks:    payment.NewWebhookValidator("whsec_test", time.Minute),
		hub:      realtime.NewHub(16),
	}
	t.Cleanup(f.hub.Close)

	locks := lock.NewUserLock()
	f.srv = New(&Dependencies{
		Config:      cfg,
		Verifier:    verifier,
		Accounts:    service.NewAccountService(f.users, locks, 3),
		Leaderboard: service.NewLeaderboardService(f.users, 10),
		Payments: service.NewPaymentService(service.PaymentDeps{
			Users:    f.users,
			Payments: f.payments,
			Checkout: f.checkout,
			Catalog:  catalog,
			Locks:    locks,
		}),
		Webhooks: f.hooks,
		Hub:      f.hub,
		Health:   func(context.Context) error { return f.health },
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type livesBody struct {
	Lives int `json:"lives"`
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	f.health = errors.New("db down")
	rec = f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestRejectsInvalidToken(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("x-whop-user-token", "not-a-jwt")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeCreatesPlayerWithInitialLives(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/me", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user := decode[model.User](t, rec)
	assert.Equal(t, devUser, user.ID)
	assert.Equal(t, 3, user.Lives)

	rec = f.do(t, http.MethodPut, "/api/me", `{"name":"Ann"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ann", decode[model.User](t, rec).Name)

	rec = f.do(t, http.MethodPut, "/api/me", `{"name":"`+strings.Repeat("x", 65)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLivesLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/lives", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown player")

	f.do(t, http.MethodGet, "/api/me", "")

	rec = f.do(t, http.MethodPut, "/api/lives", `{"lives":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[livesBody](t, rec).Lives)

	rec = f.do(t, http.MethodPost, "/api/lives/consume", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[livesBody](t, rec).Lives)

	f.do(t, http.MethodPost, "/api/lives/consume", "")
	rec = f.do(t, http.MethodPost, "/api/lives/consume", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/hearts", `{"hearts":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[livesBody](t, rec).Lives)

	rec = f.do(t, http.MethodGet, "/api/lives", "")
	assert.Equal(t, 3, decode[livesBody](t, rec).Lives)
}

func TestLivesValidation(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/api/me", "")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing lives", http.MethodPut, "/api/lives", `{}`, http.StatusBadRequest},
		{"unknown field", http.MethodPut, "/api/lives", `{"lives":1,"extra":true}`, http.StatusBadRequest},
		{"malformed", http.MethodPut, "/api/lives", `{`, http.StatusBadRequest},
		{"negative clamps", http.MethodPut, "/api/lives", `{"lives":-4}`, http.StatusOK},
		{"zero hearts", http.MethodPost, "/api/hearts", `{"hearts":0}`, http.StatusBadRequest},
		{"negative score", http.MethodPost, "/api/scores", `{"score":-1,"combo":0}`, http.StatusBadRequest},
		{"wrong method", http.MethodDelete, "/api/lives", "", http.StatusMethodNotAllowed},
		{"wrong method on webhook", http.MethodGet, "/api/webhooks/whop", "", http.StatusMethodNotAllowed},
		{"unknown route", http.MethodGet, "/api/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	rec := f.do(t, http.MethodGet, "/api/lives", "")
	assert.Equal(t, 0, decode[livesBody](t, rec).Lives)
}

func TestScoresKeepTheBest(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/api/me", "")

	type best struct {
		BestScore int `json:"best_score"`
		BestCombo int `json:"best_combo"`
	}

	rec := f.do(t, http.MethodPost, "/api/scores", `{"score":500,"combo":7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	f.do(t, http.MethodPost, "/api/scores", `{"score":120,"combo":9}`)

	rec = f.do(t, http.MethodGet, "/api/scores/best", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[best](t, rec)
	assert.Equal(t, 500, got.BestScore)
	assert.Equal(t, 9, got.BestCombo)
}

func TestLeaderboardRoutes(t *testing.T) {
	f := newFixture(t, nil)
	f.users.Put(&model.User{ID: "a", Name: "A", BestScore: 300})
	f.users.Put(&model.User{ID: "b", Name: "B", BestScore: 200, TotalSpent: decimal.NewFromInt(5)})
	f.users.Put(&model.User{ID: devUser, Name: "Me", BestScore: 10})

	rec := f.do(t, http.MethodGet, "/api/leaderboard?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	board := decode[struct {
		Entries []model.LeaderboardEntry `json:"entries"`
	}](t, rec)
	require.Len(t, board.Entries, 3)
	assert.Equal(t, "a", board.Entries[0].UserID)
	assert.Equal(t, devUser, board.Entries[2].UserID)
	assert.Equal(t, 3, board.Entries[2].Rank)
	assert.True(t, board.Entries[2].IsCurrent)

	rec = f.do(t, http.MethodGet, "/api/leaderboard?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/stats/top-spender", "")
	require.Equal(t, http.StatusOK, rec.Code)
	top := decode[struct {
		TopSpender *model.TopSpender `json:"top_spender"`
	}](t, rec)
	require.NotNil(t, top.TopSpender)
	assert.Equal(t, "B", top.TopSpender.Name)
}

func TestCheckoutRoute(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/hearts/catalog", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"price_per_heart":"0.99","currency":"usd","min_hearts":1,"max_hearts":10,"quick_picks":[1,3,5]}`,
		rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/checkout", `{"hearts":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	co := decode[payment.Checkout](t, rec)
	assert.Equal(t, "https://checkout.test/"+devUser, co.PurchaseURL)

	rec = f.do(t, http.MethodPost, "/api/checkout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{3, 1}, f.checkout.Calls, "empty body buys one heart")

	rec = f.do(t, http.MethodPost, "/api/checkout", `{"hearts":11}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.checkout.Err = &payment.APIError{Status: 500, Body: "boom"}
	rec = f.do(t, http.MethodPost, "/api/checkout", `{"hearts":1}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCheckoutIsRateLimited(t *testing.T) {
	f := newFixture(t, &config.ServerConfig{RateLimit: 0.001, RateBurst: 2})

	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodPost, "/api/checkout", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/api/checkout", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// unrelated routes are not limited
	rec = f.do(t, http.MethodGet, "/api/hearts/catalog", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookGrantsHearts(t *testing.T) {
	f := newFixture(t, nil)
	f.users.Put(&model.User{ID: "user_1", Lives: 0})

	body := []byte(`{"action":"payment.succeeded","data":{"id":"pay_1","user_id":"user_1","final_amount":"2.97","metadata":{"hearts":"3"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/whop", strings.NewReader(string(body)))
	req.Header.Set(payment.SignatureHeader, f.hooks.Sign(body, time.Now()))
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.srv.payments.Wait(ctx))

	user, err := f.users.GetByID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, 3, user.Lives)
	assert.True(t, user.TotalSpent.Equal(decimal.RequireFromString("2.97")))
}

func TestWebhooksAreNotRateLimited(t *testing.T) {
	f := newFixture(t, &config.ServerConfig{RateLimit: 5, RateBurst: 10})
	for i := 0; i < 15; i++ {
		f.users.Put(&model.User{ID: fmt.Sprintf("user_%d", i)})
	}

	for i := 0; i < 15; i++ {
		body := []byte(fmt.Sprintf(`{"action":"payment.succeeded","data":{"id":"pay_%d","user_id":"user_%d","final_amount":"0.99","metadata":{"hearts":"1"}}}`, i, i))
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/whop", strings.NewReader(string(body)))
		req.Header.Set(payment.SignatureHeader, f.hooks.Sign(body, time.Now()))
		rec := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "delivery %d", i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.srv.payments.Wait(ctx))

	for i := 0; i < 15; i++ {
		user, err := f.users.GetByID(ctx, fmt.Sprintf("user_%d", i))
		require.NoError(t, err)
		assert.Equal(t, 1, user.Lives)
	}
}

func TestWebhookRejections(t *testing.T) {
	f := newFixture(t, nil)

	body := []byte(`{"action":"payment.succeeded","data":{"id":"pay_1","user_id":"user_1"}}`)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/whop", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "unsigned")

	req = httptest.NewRequest(http.MethodPost, "/api/webhooks/whop", strings.NewReader(string(body)))
	req.Header.Set(payment.SignatureHeader, f.hooks.Sign(body, time.Now().Add(-time.Hour)))
	rec = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "stale")

	bad := []byte(`{"data":{}}`)
	req = httptest.NewRequest(http.MethodPost, "/api/webhooks/whop", strings.NewReader(string(bad)))
	req.Header.Set(payment.SignatureHeader, f.hooks.Sign(bad, time.Now()))
	rec = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing action")
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIPRateLimiterPrune(t *testing.T) {
	l := NewIPRateLimiter(1, 1)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))

	l.idle = 0
	time.Sleep(time.Millisecond)
	assert.Equal(t, 2, l.Prune())
	assert.True(t, l.Allow("10.0.0.1"), "pruned address starts with a full bucket")
}

func TestRealtimeSubscription(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/realtime?tables=users,payments"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	f.hub.Publish(model.ChangeEvent{Table: model.TablePayments, Type: model.ChangeInsert,
		Row: json.RawMessage(`{"id":9,"user_id":"someone_else"}`)})
	f.hub.Publish(model.ChangeEvent{Table: model.TableUsers, Type: model.ChangeUpdate,
		Row: json.RawMessage(`{"id":"someone_else","lives":4}`)})
	f.hub.Publish(model.ChangeEvent{Table: model.TableUsers, Type: model.ChangeUpdate,
		Row: json.RawMessage(`{"id":"` + devUser + `","lives":2}`)})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var other, own model.ChangeEvent
	require.NoError(t, conn.ReadJSON(&other))
	assert.Equal(t, model.TableUsers, other.Table, "foreign payments are filtered out")
	assert.Equal(t, "null", string(other.Row), "foreign rows are redacted")

	require.NoError(t, conn.ReadJSON(&own))
	assert.JSONEq(t, `{"id":"`+devUser+`","lives":2}`, string(own.Row))

	f.hub.Close()
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	f := newFixture(t, &config.ServerConfig{RateLimit: 1, RateBurst: 1, ShutdownTimeout: time.Second})

	ln := httptest.NewUnstartedServer(nil).Listener
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
