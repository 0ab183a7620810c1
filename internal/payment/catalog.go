// Package payment talks to the payment platform: checkout creation and
// webhook validation. It also prices heart purchases.
package payment

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Heart purchase limits.
const (
	MinHearts = 1
	MaxHearts = 10
)

// QuickPicks are the preset heart quantities offered on the purchase screen.
var QuickPicks = []int{1, 3, 5}

// ErrInvalidHearts is returned for quantities outside [MinHearts, MaxHearts].
var ErrInvalidHearts = errors.New("invalid hearts quantity")

// Catalog prices heart purchases.
type Catalog struct {
	PricePerHeart decimal.Decimal
	Currency      string
}

// NewCatalog creates a catalog. price must be positive.
func NewCatalog(price decimal.Decimal, currency string) (*Catalog, error) {
	if !price.IsPositive() {
		return nil, fmt.Errorf("price per heart must be positive, got %s", price)
	}
	if currency == "" {
		currency = "usd"
	}
	return &Catalog{PricePerHeart: price, Currency: currency}, nil
}

// Validate checks a requested quantity.
func (c *Catalog) Validate(hearts int) error {
	if hearts < MinHearts || hearts > MaxHearts {
		return fmt.Errorf("%w: %d (allowed %d-%d)", ErrInvalidHearts, hearts, MinHearts, MaxHearts)
	}
	return nil
}

// Price returns the total price of hearts, rounded to cents.
func (c *Catalog) Price(hearts int) decimal.Decimal {
	return c.PricePerHeart.Mul(decimal.NewFromInt(int64(hearts))).Round(2)
}

// HeartsFor returns how many hearts an amount buys, at least one.
// Used when a payment arrives without hearts metadata.
func (c *Catalog) HeartsFor(amount decimal.Decimal) int {
	n := amount.Div(c.PricePerHeart).Floor().IntPart()
	if n < MinHearts {
		return MinHearts
	}
	if n > MaxHearts {
		return MaxHearts
	}
	return int(n)
}

// Format renders an amount for display, e.g. "$3.00".
func (c *Catalog) Format(amount decimal.Decimal) string {
	if c.Currency == "usd" {
		return "$" + amount.StringFixed(2)
	}
	return amount.StringFixed(2) + " " + c.Currency
}
