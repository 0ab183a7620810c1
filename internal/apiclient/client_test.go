package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typerush/internal/auth"
	"typerush/internal/config"
	"typerush/internal/game/typing"
	"typerush/internal/model"
	"typerush/internal/payment"
	"typerush/internal/pkg/lock"
	"typerush/internal/realtime"
	"typerush/internal/server"
	"typerush/internal/service"
	"typerush/internal/service/servicetest"
)

var _ typing.Persistence = (*Client)(nil)

const devUser = "user_dev"

type backend struct {
	users *servicetest.Users
	hub   *realtime.Hub
	url   string
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	catalog, err := payment.NewCatalog(decimal.RequireFromString("1.00"), "usd")
	require.NoError(t, err)
	verifier, err := auth.NewVerifier(auth.Options{DevUserID: devUser})
	require.NoError(t, err)

	b := &backend{users: servicetest.NewUsers(), hub: realtime.NewHub(8)}
	locks := lock.NewUserLock()
	srv := server.New(&server.Dependencies{
		Config:      &config.ServerConfig{RateLimit: 100, RateBurst: 100},
		Verifier:    verifier,
		Accounts:    service.NewAccountService(b.users, locks, 2),
		Leaderboard: service.NewLeaderboardService(b.users, 10),
		Payments: service.NewPaymentService(service.PaymentDeps{
			Users:    b.users,
			Payments: servicetest.NewPayments(),
			Checkout: &servicetest.Checkout{},
			Catalog:  catalog,
			Locks:    locks,
		}),
		Webhooks: payment.NewWebhookValidator("", 0),
		Hub:      b.hub,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(b.hub.Close)
	b.url = ts.URL
	return b
}

func TestClientAccountFlow(t *testing.T) {
	b := newBackend(t)
	c := New(Options{BaseURL: b.url + "/"})
	ctx := context.Background()

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, devUser, me.ID)
	assert.Equal(t, 2, me.Lives)

	me, err = c.Rename(ctx, "Typist")
	require.NoError(t, err)
	assert.Equal(t, "Typist", me.Name)

	lives, err := c.ConsumeLife(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, lives)
	_, err = c.ConsumeLife(ctx)
	require.NoError(t, err)

	_, err = c.ConsumeLife(ctx)
	assert.ErrorIs(t, err, ErrNoLives)

	lives, err = c.AddHearts(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, lives)

	lives, err = c.SetLives(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, lives)

	lives, err = c.LoadLives(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, lives)

	require.NoError(t, c.SaveScore(ctx, 420, 12))
	score, combo, err := c.BestScore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 420, score)
	assert.Equal(t, 12, combo)

	stats, err := c.Spending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.CurrentLives)
	assert.True(t, stats.TotalSpent.IsZero())

	top, err := c.TopSpender(ctx)
	require.NoError(t, err)
	assert.Nil(t, top)
}

func TestClientLeaderboardAndCheckout(t *testing.T) {
	b := newBackend(t)
	b.users.Put(&model.User{ID: "a", Name: "A", BestScore: 90})
	b.users.Put(&model.User{ID: devUser, Name: "Me", BestScore: 10})
	c := New(Options{BaseURL: b.url})
	ctx := context.Background()

	entries, err := c.Leaderboard(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "A", entries[0].Name)
	assert.Equal(t, 2, entries[1].Rank)

	cat, err := c.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.00", cat.PricePerHeart)
	assert.Equal(t, []int{1, 3, 5}, cat.QuickPicks)

	co, err := c.Checkout(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, co.Hearts)
	assert.Equal(t, "plan_1", co.PlanID)

	_, err = c.Checkout(ctx, 0)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.Status)
}

func TestClientUnauthorized(t *testing.T) {
	b := newBackend(t)
	c := New(Options{BaseURL: b.url, Token: "garbage"})

	_, err := c.Me(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = c.Subscribe(context.Background(), model.TableUsers)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClientSubscribe(t *testing.T) {
	b := newBackend(t)
	c := New(Options{BaseURL: b.url})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := c.Subscribe(ctx, model.TableUsers)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	b.hub.Publish(model.ChangeEvent{Table: model.TableUsers, Type: model.ChangeUpdate,
		Row: json.RawMessage(`{"id":"` + devUser + `","lives":7}`)})

	select {
	case ev := <-events:
		assert.Equal(t, devUser, ev.OwnerID())
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
