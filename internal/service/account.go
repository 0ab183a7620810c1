package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"typerush/internal/model"
	"typerush/internal/pkg/lock"
	"typerush/internal/repository"
)

// Common errors for account operations.
var (
	ErrInvalidScore  = errors.New("score and combo must not be negative")
	ErrInvalidHearts = errors.New("hearts must be positive")
)

const lockTimeout = 5 * time.Second

// AccountService handles lives, best scores and spending summaries.
type AccountService struct {
	users        UserStore
	locks        *lock.UserLock
	initialLives int
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(users UserStore, locks *lock.UserLock, initialLives int) *AccountService {
	if initialLives < 0 {
		initialLives = 0
	}
	return &AccountService{users: users, locks: locks, initialLives: initialLives}
}

// EnsureUser ensures a user exists, creating one if necessary, and refreshes
// the stored username and name when they changed.
// Returns the user and whether it was newly created.
func (s *AccountService) EnsureUser(ctx context.Context, id, username, name string) (*model.User, bool, error) {
	var (
		user    *model.User
		created bool
	)
	err := s.locks.WithLockContext(ctx, id, lockTimeout, func() error {
		var err error
		user, created, err = s.users.GetOrCreate(ctx, id, username, name, s.initialLives)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}

	if created {
		log.Info().Str("user_id", id).Int("lives", user.Lives).Msg("New player created")
		return user, true, nil
	}

	if (username != "" && user.Username != username) || (name != "" && user.Name != name) {
		updated, err := s.users.UpdateProfile(ctx, id, username, name)
		if err != nil {
			// the user still exists, keep going with the stale profile
			log.Warn().Err(err).Str("user_id", id).Msg("Failed to refresh profile")
			return user, false, nil
		}
		user = updated
	}

	return user, false, nil
}

// withUser runs a lives write under the user's lock.
func (s *AccountService) withUser(ctx context.Context, id string, fn func() error) error {
	return s.locks.WithLockContext(ctx, id, lockTimeout, fn)
}

// GetUser retrieves a user by id.
func (s *AccountService) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

// Rename sets the display name shown on leaderboards.
func (s *AccountService) Rename(ctx context.Context, id, name string) (*model.User, error) {
	return s.users.UpdateProfile(ctx, id, "", name)
}

// GetLives returns the user's lives.
func (s *AccountService) GetLives(ctx context.Context, id string) (int, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to get lives: %w", err)
	}
	return user.Lives, nil
}

// SetLives sets the user's lives, clamped at zero.
func (s *AccountService) SetLives(ctx context.Context, id string, lives int) (*model.User, error) {
	if lives < 0 {
		lives = 0
	}
	var user *model.User
	err := s.withUser(ctx, id, func() error {
		var err error
		user, err = s.users.SetLives(ctx, id, lives)
		return err
	})
	return user, err
}

// ConsumeLife takes one life. Returns repository.ErrNoLives when none remain.
func (s *AccountService) ConsumeLife(ctx context.Context, id string) (*model.User, error) {
	var user *model.User
	err := s.withUser(ctx, id, func() error {
		var err error
		user, err = s.users.ConsumeLife(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNoLives) || errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to consume life: %w", err)
	}
	return user, nil
}

// AddHearts grants hearts without a charge. Used for the client's direct
// grant after a successful purchase and by operators.
func (s *AccountService) AddHearts(ctx context.Context, id string, hearts int) (*model.User, error) {
	if hearts <= 0 {
		return nil, ErrInvalidHearts
	}
	var user *model.User
	err := s.withUser(ctx, id, func() error {
		var err error
		user, err = s.users.AddLives(ctx, id, hearts)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", id).Int("hearts", hearts).Int("lives", user.Lives).Msg("Hearts added")
	return user, nil
}

// SaveScore raises the stored best score and best combo where the new values
// are higher.
func (s *AccountService) SaveScore(ctx context.Context, id string, score, combo int) (*model.User, error) {
	if score < 0 || combo < 0 {
		return nil, ErrInvalidScore
	}
	return s.users.SaveBest(ctx, id, score, combo)
}

// GetBestScore returns the stored best score and combo.
func (s *AccountService) GetBestScore(ctx context.Context, id string) (score, combo int, err error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	return user.BestScore, user.BestCombo, nil
}

// GetSpendingStats summarizes the user's spending and current lives.
func (s *AccountService) GetSpendingStats(ctx context.Context, id string) (*model.SpendingStats, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.SpendingStats{
		TotalSpent:    user.TotalSpent,
		CurrentLives:  user.Lives,
		PaymentCount:  user.PaymentCount,
		LastPaymentAt: user.LastPaymentAt,
	}, nil
}
