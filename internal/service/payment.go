package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"typerush/internal/model"
	"typerush/internal/notify"
	"typerush/internal/payment"
	"typerush/internal/pkg/lock"
	"typerush/internal/repository"
)

// Payment errors.
var (
	ErrMissingPayer  = errors.New("payment has no user id")
	ErrInvalidAmount = errors.New("payment amount must not be negative")
)

// PaymentService creates checkouts and records confirmed payments.
type PaymentService struct {
	users            UserStore
	payments         PaymentStore
	checkout         CheckoutCreator
	catalog          *payment.Catalog
	notifier         notify.Notifier
	locks            *lock.UserLock
	heartsPerPayment int
	now              func() time.Time
}

// PaymentDeps holds the collaborators of PaymentService.
type PaymentDeps struct {
	Users            UserStore
	Payments         PaymentStore
	Checkout         CheckoutCreator
	Catalog          *payment.Catalog
	Notifier         notify.Notifier
	Locks            *lock.UserLock
	HeartsPerPayment int
}

// NewPaymentService creates a new PaymentService instance.
func NewPaymentService(deps PaymentDeps) *PaymentService {
	n := deps.Notifier
	if n == nil {
		n = notify.Nop{}
	}
	hearts := deps.HeartsPerPayment
	if hearts < 1 {
		hearts = 1
	}
	return &PaymentService{
		users:            deps.Users,
		payments:         deps.Payments,
		checkout:         deps.Checkout,
		catalog:          deps.Catalog,
		notifier:         n,
		locks:            deps.Locks,
		heartsPerPayment: hearts,
		now:              time.Now,
	}
}

// Catalog returns the heart pricing.
func (s *PaymentService) Catalog() *payment.Catalog {
	return s.catalog
}

// CreateCheckout creates a checkout configuration for hearts.
func (s *PaymentService) CreateCheckout(ctx context.Context, userID string, hearts int) (*payment.Checkout, error) {
	if err := s.catalog.Validate(hearts); err != nil {
		return nil, err
	}
	return s.checkout.CreateCheckoutConfig(ctx, userID, hearts)
}

// HandleWebhook processes a validated webhook. Actions other than
// payment.succeeded are ignored.
func (s *PaymentService) HandleWebhook(ctx context.Context, wh *payment.Webhook) error {
	if wh.Action != payment.ActionPaymentSucceeded {
		log.Debug().Str("action", wh.Action).Msg("Ignoring webhook action")
		return nil
	}

	data := wh.Data
	userID := data.UserID
	if userID == "" {
		userID = data.MetaString(payment.MetaUserID)
	}

	hearts := data.Hearts()
	if hearts == 0 {
		hearts = s.heartsPerPayment
	}

	log.Info().
		Str("payment_id", data.ID).
		Str("user_id", userID).
		Str("amount", data.FinalAmount.String()).
		Int("hearts", hearts).
		Msg("Payment succeeded")

	_, err := s.RecordPayment(ctx, userID, data.FinalAmount, hearts)
	return err
}

// RecordPayment adds a payment to the payer's totals, grants hearts and
// updates the payment summary. The payer is looked up by id, then by
// username, and created with no lives when unknown.
func (s *PaymentService) RecordPayment(ctx context.Context, payerID string, amount decimal.Decimal, hearts int) (*model.User, error) {
	if payerID == "" {
		return nil, ErrMissingPayer
	}
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if hearts <= 0 {
		return nil, ErrInvalidHearts
	}

	payer, err := s.resolvePayer(ctx, payerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve payer: %w", err)
	}

	var user *model.User
	err = s.locks.WithLockContext(ctx, payer.ID, lockTimeout, func() error {
		var err error
		at := s.now()
		user, err = s.users.RecordSpend(ctx, payer.ID, amount, hearts, at)
		if err != nil {
			return err
		}

		if _, err := s.payments.Upsert(ctx, payer.ID, model.PaymentTypeGameContinue, amount, at); err != nil {
			// the hearts are already granted; the summary row can lag
			log.Error().Err(err).Str("user_id", payer.ID).Msg("Failed to record payment summary")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	log.Info().
		Str("user_id", user.ID).
		Int("lives", user.Lives).
		Str("total_spent", user.TotalSpent.String()).
		Msg("Payment recorded")

	s.notifier.PaymentReceived(ctx, notify.PaymentEvent{
		UserID:     user.ID,
		Name:       user.DisplayName(),
		Amount:     amount,
		Hearts:     hearts,
		Lives:      user.Lives,
		TotalSpent: user.TotalSpent,
		At:         s.now(),
	})

	return user, nil
}

func (s *PaymentService) resolvePayer(ctx context.Context, payerID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, payerID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	user, err = s.users.GetByUsername(ctx, payerID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	log.Info().Str("user_id", payerID).Msg("Payment from unknown player, creating account")
	user, _, err = s.users.GetOrCreate(ctx, payerID, "", "", 0)
	return user, err
}

// ListPayments returns the user's payment summaries.
func (s *PaymentService) ListPayments(ctx context.Context, userID string) ([]*model.Payment, error) {
	return s.payments.ListByUser(ctx, userID)
}
