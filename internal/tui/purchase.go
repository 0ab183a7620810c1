package tui

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"typerush/internal/apiclient"
	"typerush/internal/model"
	"typerush/internal/payment"
)

// Purchase screen timings.
const (
	DefaultPollInterval   = 2 * time.Second
	DefaultPaymentTimeout = 30 * time.Second
	DefaultRecheckDelay   = 3 * time.Second
)

type purchasePhase int

const (
	phaseSelect purchasePhase = iota
	phaseCreating
	phaseWaiting
	phaseDone
)

// purchase tracks the game-over upsell: hearts selection, checkout and
// waiting for the payment to show up as lives.
type purchase struct {
	phase    purchasePhase
	hearts   int
	min      int
	max      int
	picks    []int
	price    decimal.Decimal
	currency string

	checkout *payment.Checkout
	qr       string
	deadline time.Time
	// seq identifies the current checkout so stale timers are ignored
	seq int
}

func newPurchase(cat *apiclient.Catalog) *purchase {
	p := &purchase{
		hearts:   1,
		min:      payment.MinHearts,
		max:      payment.MaxHearts,
		picks:    payment.QuickPicks,
		price:    decimal.NewFromInt(1),
		currency: "usd",
	}
	if cat == nil {
		return p
	}
	if cat.MinHearts > 0 {
		p.min = cat.MinHearts
	}
	if cat.MaxHearts >= p.min {
		p.max = cat.MaxHearts
	}
	if len(cat.QuickPicks) > 0 {
		p.picks = cat.QuickPicks
	}
	if price, err := decimal.NewFromString(cat.PricePerHeart); err == nil && price.IsPositive() {
		p.price = price
	}
	if cat.Currency != "" {
		p.currency = cat.Currency
	}
	p.hearts = p.min
	return p
}

func (p *purchase) adjust(delta int) {
	if p.phase != phaseSelect {
		return
	}
	p.hearts = min(max(p.hearts+delta, p.min), p.max)
}

// pick selects the i-th quick pick (0-based).
func (p *purchase) pick(i int) {
	if p.phase != phaseSelect || i < 0 || i >= len(p.picks) {
		return
	}
	p.hearts = min(max(p.picks[i], p.min), p.max)
}

func (p *purchase) total() decimal.Decimal {
	return p.price.Mul(decimal.NewFromInt(int64(p.hearts))).Round(2)
}

func (p *purchase) totalLabel() string {
	if p.currency == "usd" {
		return "$" + p.total().StringFixed(2)
	}
	return fmt.Sprintf("%s %s", p.total().StringFixed(2), p.currency)
}

// begin moves to checkout creation and returns the new sequence number.
func (p *purchase) begin() int {
	p.phase = phaseCreating
	p.seq++
	return p.seq
}

// opened records a created checkout and starts the payment deadline.
func (p *purchase) opened(co *payment.Checkout, qr string, now time.Time, timeout time.Duration) {
	p.phase = phaseWaiting
	p.checkout = co
	p.qr = qr
	p.deadline = now.Add(timeout)
}

func (p *purchase) waiting(seq int) bool {
	return p.phase == phaseWaiting && p.seq == seq
}

func (p *purchase) remaining(now time.Time) time.Duration {
	if p.phase != phaseWaiting {
		return 0
	}
	return max(p.deadline.Sub(now), 0).Round(time.Second)
}

func (p *purchase) finish() {
	p.phase = phaseDone
}

// livesFromEvent extracts the lives column from a users row change.
// Rows of other players arrive redacted and report false.
func livesFromEvent(ev model.ChangeEvent) (int, bool) {
	if ev.Table != model.TableUsers || ev.Type == model.ChangeDelete || len(ev.Row) == 0 {
		return 0, false
	}
	var row struct {
		Lives *int `json:"lives"`
	}
	if err := json.Unmarshal(ev.Row, &row); err != nil || row.Lives == nil {
		return 0, false
	}
	return *row.Lives, true
}
