// Package notify tells operators about payments.
package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentEvent describes a recorded payment.
type PaymentEvent struct {
	UserID     string
	Name       string
	Amount     decimal.Decimal
	Hearts     int
	Lives      int
	TotalSpent decimal.Decimal
	At         time.Time
}

// Notifier delivers operator notifications. Implementations must not block
// the caller on network I/O.
type Notifier interface {
	PaymentReceived(ctx context.Context, ev PaymentEvent)
}

// Nop discards every notification.
type Nop struct{}

// PaymentReceived does nothing.
func (Nop) PaymentReceived(context.Context, PaymentEvent) {}
