// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"typerush/internal/cache"
	"typerush/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container, applies the schema and returns
// a connection pool. Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

func TestMigrateIsIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, Migrate(context.Background(), pool))
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	user, err := repo.Create(ctx, "user_abc", "alice", "Alice", 0)
	require.NoError(t, err)
	assert.Equal(t, "user_abc", user.ID)
	assert.Equal(t, 0, user.Lives)
	assert.True(t, user.TotalSpent.IsZero())
	assert.Nil(t, user.LastPaymentAt)
	assert.False(t, user.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, "user_abc")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	byName, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "user_abc", byName.ID)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = repo.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_GetOrCreate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	user, created, err := repo.GetOrCreate(ctx, "user_1", "bob", "", 2)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 2, user.Lives)

	user, created, err = repo.GetOrCreate(ctx, "user_1", "bob", "", 5)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 2, user.Lives, "existing users keep their lives")
}

func TestUserRepository_UpdateProfile(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, "user_1", "old", "Old Name", 0)
	require.NoError(t, err)

	user, err := repo.UpdateProfile(ctx, "user_1", "", "New Name")
	require.NoError(t, err)
	assert.Equal(t, "old", user.Username)
	assert.Equal(t, "New Name", user.Name)

	_, err = repo.UpdateProfile(ctx, "missing", "x", "y")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_Lives(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, "user_1", "p", "", 0)
	require.NoError(t, err)

	user, err := repo.SetLives(ctx, "user_1", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, user.Lives)

	user, err = repo.SetLives(ctx, "user_1", -4)
	require.NoError(t, err)
	assert.Equal(t, 0, user.Lives, "lives clamp at zero")

	user, err = repo.AddLives(ctx, "user_1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, user.Lives)

	user, err = repo.AddLives(ctx, "user_1", -10)
	require.NoError(t, err)
	assert.Equal(t, 0, user.Lives)

	_, err = repo.ConsumeLife(ctx, "user_1")
	assert.ErrorIs(t, err, ErrNoLives)

	_, err = repo.AddLives(ctx, "user_1", 1)
	require.NoError(t, err)
	user, err = repo.ConsumeLife(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, 0, user.Lives)

	_, err = repo.ConsumeLife(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = repo.SetLives(ctx, "missing", 1)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_SaveBestOnlyRaises(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, "user_1", "p", "", 0)
	require.NoError(t, err)

	user, err := repo.SaveBest(ctx, "user_1", 300, 4)
	require.NoError(t, err)
	assert.Equal(t, 300, user.BestScore)
	assert.Equal(t, 4, user.BestCombo)

	user, err = repo.SaveBest(ctx, "user_1", 200, 9)
	require.NoError(t, err)
	assert.Equal(t, 300, user.BestScore, "lower score is ignored")
	assert.Equal(t, 9, user.BestCombo, "combo is raised independently")

	user, err = repo.SaveBest(ctx, "user_1", 500, 1)
	require.NoError(t, err)
	assert.Equal(t, 500, user.BestScore)
	assert.Equal(t, 9, user.BestCombo)
}

func TestUserRepository_RecordSpend(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, "user_1", "p", "", 1)
	require.NoError(t, err)

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	user, err := repo.RecordSpend(ctx, "user_1", decimal.RequireFromString("1.50"), 1, at)
	require.NoError(t, err)
	assert.Equal(t, 2, user.Lives)
	assert.Equal(t, 1, user.PaymentCount)
	assert.True(t, user.TotalSpent.Equal(decimal.RequireFromString("1.50")))
	require.NotNil(t, user.LastPaymentAt)
	assert.True(t, user.LastPaymentAt.Equal(at))

	user, err = repo.RecordSpend(ctx, "user_1", decimal.RequireFromString("3.00"), 3, at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 5, user.Lives)
	assert.Equal(t, 2, user.PaymentCount)
	assert.True(t, user.TotalSpent.Equal(decimal.RequireFromString("4.50")))
}

func TestUserRepository_LeaderboardQueries(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	scores := map[string]int{"u1": 100, "u2": 300, "u3": 200, "u4": 200}
	for id, score := range scores {
		_, err := repo.Create(ctx, id, id, "", 0)
		require.NoError(t, err)
		_, err = repo.SaveBest(ctx, id, score, 0)
		require.NoError(t, err)
	}

	top, err := repo.GetTop(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "u2", top[0].ID)
	assert.Equal(t, 200, top[1].BestScore)

	rank, err := repo.RankOf(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 4, rank)

	rank, err = repo.RankOf(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, 2, rank, "ties share a rank")
}

func TestUserRepository_TopSpender(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	top, err := repo.TopSpender(ctx)
	require.NoError(t, err)
	assert.Nil(t, top)

	_, err = repo.Create(ctx, "u1", "small", "", 0)
	require.NoError(t, err)
	_, err = repo.Create(ctx, "u2", "big", "Big Spender", 0)
	require.NoError(t, err)

	now := time.Now()
	_, err = repo.RecordSpend(ctx, "u1", decimal.NewFromInt(1), 1, now)
	require.NoError(t, err)
	_, err = repo.RecordSpend(ctx, "u2", decimal.NewFromInt(5), 5, now)
	require.NoError(t, err)

	top, err = repo.TopSpender(ctx)
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.Equal(t, "Big Spender", top.Name)
	assert.True(t, top.TotalSpent.Equal(decimal.NewFromInt(5)))
}

func TestPaymentRepository_Upsert(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	paymentRepo := NewPaymentRepository(pool)
	ctx := context.Background()

	_, err := userRepo.Create(ctx, "user_1", "p", "", 0)
	require.NoError(t, err)

	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := paymentRepo.Upsert(ctx, "user_1", model.PaymentTypeGameContinue, decimal.NewFromInt(1), first)
	require.NoError(t, err)
	assert.Equal(t, 1, p.PaymentCount)
	assert.True(t, p.FirstPaymentAt.Equal(first))

	second := first.Add(24 * time.Hour)
	p, err = paymentRepo.Upsert(ctx, "user_1", model.PaymentTypeGameContinue, decimal.NewFromInt(2), second)
	require.NoError(t, err)
	assert.Equal(t, 2, p.PaymentCount)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(3)))
	assert.True(t, p.FirstPaymentAt.Equal(first))
	assert.True(t, p.LastPaymentAt.Equal(second))

	payments, err := paymentRepo.ListByUser(ctx, "user_1")
	require.NoError(t, err)
	assert.Len(t, payments, 1, "one row per (user, payment type)")
}

func TestCachedUserRepository_InvalidateOnWrite(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	c := cache.NewMemory()
	repo := NewCachedUserRepository(NewUserRepository(pool), c, time.Minute)
	ctx := context.Background()

	_, _, err := repo.GetOrCreate(ctx, "user_1", "p", "", 0)
	require.NoError(t, err)

	user, err := repo.GetByID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, 0, user.Lives)

	_, err = c.Get(ctx, userCacheKey("user_1"))
	require.NoError(t, err, "read populates the cache")

	_, err = repo.AddLives(ctx, "user_1", 2)
	require.NoError(t, err)

	_, err = c.Get(ctx, userCacheKey("user_1"))
	assert.ErrorIs(t, err, cache.ErrMiss, "write invalidates the cache")

	user, err = repo.GetByID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, 2, user.Lives)
}
