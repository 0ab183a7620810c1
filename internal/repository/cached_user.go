package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"typerush/internal/cache"
	"typerush/internal/model"
)

// DefaultUserCacheTTL bounds how stale a cached user row can get when a
// write bypasses this process.
const DefaultUserCacheTTL = 30 * time.Second

// CachedUserRepository serves GetByID from a cache and invalidates the
// user's entry after every write that goes through it. Cache failures fall
// through to the database.
type CachedUserRepository struct {
	*UserRepository
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedUserRepository wraps repo with c.
func NewCachedUserRepository(repo *UserRepository, c cache.Cache, ttl time.Duration) *CachedUserRepository {
	if ttl <= 0 {
		ttl = DefaultUserCacheTTL
	}
	return &CachedUserRepository{UserRepository: repo, cache: c, ttl: ttl}
}

func userCacheKey(id string) string {
	return "user:" + id
}

// GetByID returns the cached user when present.
func (r *CachedUserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	key := userCacheKey(id)

	raw, err := r.cache.Get(ctx, key)
	if err == nil {
		var user model.User
		if jsonErr := json.Unmarshal(raw, &user); jsonErr == nil {
			return &user, nil
		}
		_ = r.cache.Delete(ctx, key)
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Str("user_id", id).Msg("User cache read failed")
	}

	user, err := r.UserRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, user)
	return user, nil
}

// GetOrCreate resolves through the cache before falling back to create.
func (r *CachedUserRepository) GetOrCreate(ctx context.Context, id, username, name string, initialLives int) (*model.User, bool, error) {
	user, err := r.GetByID(ctx, id)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}
	user, created, err := r.UserRepository.GetOrCreate(ctx, id, username, name, initialLives)
	if err != nil {
		return nil, false, err
	}
	r.Invalidate(ctx, id)
	return user, created, nil
}

// UpdateProfile updates and invalidates.
func (r *CachedUserRepository) UpdateProfile(ctx context.Context, id, username, name string) (*model.User, error) {
	defer r.Invalidate(ctx, id)
	return r.UserRepository.UpdateProfile(ctx, id, username, name)
}

// SetLives updates and invalidates.
func (r *CachedUserRepository) SetLives(ctx context.Context, id string, lives int) (*model.User, error) {
	defer r.Invalidate(ctx, id)
	return r.UserRepository.SetLives(ctx, id, lives)
}

// AddLives updates and invalidates.
func (r *CachedUserRepository) AddLives(ctx context.Context, id string, delta int) (*model.User, error) {
	defer r.Invalidate(ctx, id)
	return r.UserRepository.AddLives(ctx, id, delta)
}

// ConsumeLife updates and invalidates.
func (r *CachedUserRepository) ConsumeLife(ctx context.Context, id string) (*model.User, error) {
	defer r.Invalidate(ctx, id)
	return r.UserRepository.ConsumeLife(ctx, id)
}

// SaveBest updates and invalidates.
func (r *CachedUserRepository) SaveBest(ctx context.Context, id string, score, combo int) (*model.User, error) {
	defer r.Invalidate(ctx, id)
	return r.UserRepository.SaveBest(ctx, id, score, combo)
}

// RecordSpend updates and invalidates.
func (r *CachedUserRepository) RecordSpend(ctx context.Context, id string, amount decimal.Decimal, hearts int, at time.Time) (*model.User, error) {
	defer r.Invalidate(ctx, id)
	return r.UserRepository.RecordSpend(ctx, id, amount, hearts, at)
}

// Invalidate drops the cached row for id. It is also called when the change
// feed reports a write made by another server instance.
func (r *CachedUserRepository) Invalidate(ctx context.Context, id string) {
	if err := r.cache.Delete(ctx, userCacheKey(id)); err != nil {
		log.Warn().Err(err).Str("user_id", id).Msg("User cache invalidation failed")
	}
}

func (r *CachedUserRepository) store(ctx context.Context, user *model.User) {
	raw, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, userCacheKey(user.ID), raw, r.ttl); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("User cache write failed")
	}
}
