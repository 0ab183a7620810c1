// Package service provides business logic implementations.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"typerush/internal/model"
	"typerush/internal/payment"
)

// UserStore is the user persistence the services depend on. It is satisfied
// by repository.UserRepository and repository.CachedUserRepository.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetOrCreate(ctx context.Context, id, username, name string, initialLives int) (*model.User, bool, error)
	UpdateProfile(ctx context.Context, id, username, name string) (*model.User, error)
	SetLives(ctx context.Context, id string, lives int) (*model.User, error)
	AddLives(ctx context.Context, id string, delta int) (*model.User, error)
	ConsumeLife(ctx context.Context, id string) (*model.User, error)
	SaveBest(ctx context.Context, id string, score, combo int) (*model.User, error)
	RecordSpend(ctx context.Context, id string, amount decimal.Decimal, hearts int, at time.Time) (*model.User, error)
	GetTop(ctx context.Context, limit int) ([]*model.User, error)
	RankOf(ctx context.Context, bestScore int) (int, error)
	TopSpender(ctx context.Context) (*model.TopSpender, error)
}

// PaymentStore is the payment summary persistence.
type PaymentStore interface {
	Upsert(ctx context.Context, userID, paymentType string, amount decimal.Decimal, at time.Time) (*model.Payment, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Payment, error)
}

// CheckoutCreator creates checkout configurations on the payment platform.
type CheckoutCreator interface {
	CreateCheckoutConfig(ctx context.Context, userID string, hearts int) (*payment.Checkout, error)
}
