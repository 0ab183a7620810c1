package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"typerush/internal/model"
)

// PaymentRepository handles the per-type payment summary rows.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository instance.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Upsert adds a payment to the (user, payment type) summary row, creating
// it on the first payment.
func (r *PaymentRepository) Upsert(ctx context.Context, userID, paymentType string, amount decimal.Decimal, at time.Time) (*model.Payment, error) {
	const query = `
		INSERT INTO payments (user_id, payment_type, amount, payment_count, first_payment_date, last_payment_date, updated_at)
		VALUES ($1, $2, $3, 1, $4, $4, NOW())
		ON CONFLICT (user_id, payment_type) DO UPDATE
		SET amount = payments.amount + EXCLUDED.amount,
		    payment_count = payments.payment_count + 1,
		    last_payment_date = EXCLUDED.last_payment_date,
		    updated_at = NOW()
		RETURNING id, user_id, payment_type, amount, payment_count, first_payment_date, last_payment_date, updated_at
	`

	var p model.Payment
	err := r.pool.QueryRow(ctx, query, userID, paymentType, amount, at).Scan(
		&p.ID,
		&p.UserID,
		&p.PaymentType,
		&p.Amount,
		&p.PaymentCount,
		&p.FirstPaymentAt,
		&p.LastPaymentAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert payment: %w", err)
	}

	return &p, nil
}

// ListByUser retrieves a user's payment summaries, most recent first.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID string) ([]*model.Payment, error) {
	const query = `
		SELECT id, user_id, payment_type, amount, payment_count, first_payment_date, last_payment_date, updated_at
		FROM payments
		WHERE user_id = $1
		ORDER BY last_payment_date DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*model.Payment
	for rows.Next() {
		var p model.Payment
		err := rows.Scan(
			&p.ID,
			&p.UserID,
			&p.PaymentType,
			&p.Amount,
			&p.PaymentCount,
			&p.FirstPaymentAt,
			&p.LastPaymentAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}

	return payments, nil
}
