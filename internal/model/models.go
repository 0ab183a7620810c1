// Package model defines the data models for the TypeRush backend.
package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// User represents a player account. The record carries the player's
// remaining lives, personal bests and spending summary.
type User struct {
	ID            string          `db:"id" json:"id"`
	Username      string          `db:"username" json:"username"`
	Name          string          `db:"name" json:"name"`
	Lives         int             `db:"lives" json:"lives"`
	BestScore     int             `db:"best_score" json:"best_score"`
	BestCombo     int             `db:"best_combo" json:"best_combo"`
	TotalSpent    decimal.Decimal `db:"total_spent" json:"total_spent"`
	PaymentCount  int             `db:"payment_count" json:"payment_count"`
	LastPaymentAt *time.Time      `db:"last_payment_date" json:"last_payment_date,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// DisplayName returns the name shown on leaderboards.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.Username != "" {
		return u.Username
	}
	return "Anonymous"
}

// Payment aggregates every payment of one type made by a user.
type Payment struct {
	ID             int64           `db:"id" json:"id"`
	UserID         string          `db:"user_id" json:"user_id"`
	PaymentType    string          `db:"payment_type" json:"payment_type"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	PaymentCount   int             `db:"payment_count" json:"payment_count"`
	FirstPaymentAt time.Time       `db:"first_payment_date" json:"first_payment_date"`
	LastPaymentAt  time.Time       `db:"last_payment_date" json:"last_payment_date"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// PaymentTypeGameContinue tags purchases of extra lives.
const PaymentTypeGameContinue = "game_continue"

// LeaderboardEntry is one row of the best-score ranking.
type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Combo     int    `json:"combo"`
	IsCurrent bool   `json:"is_current,omitempty"`
}

// SpendingStats summarizes what a user has spent and what they hold.
type SpendingStats struct {
	TotalSpent    decimal.Decimal `json:"total_spent"`
	CurrentLives  int             `json:"current_lives"`
	PaymentCount  int             `json:"payment_count"`
	LastPaymentAt *time.Time      `json:"last_payment_date,omitempty"`
}

// TopSpender is the single highest-spending player.
type TopSpender struct {
	Name       string          `json:"name"`
	TotalSpent decimal.Decimal `json:"total_spent"`
}

// Change event types emitted by the database triggers.
const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)

// Tables that publish change events.
const (
	TableUsers    = "users"
	TablePayments = "payments"
)

// ChangeEvent is a row mutation pushed from the database. Row holds the new
// row image (the old one for deletes) as JSON.
type ChangeEvent struct {
	Table string          `json:"table"`
	Type  string          `json:"type"`
	Row   json.RawMessage `json:"row"`
}

// RowID extracts the "id" and "user_id" columns from the row image.
// Missing columns come back empty.
func (e ChangeEvent) RowID() (id string, userID string) {
	var keys struct {
		ID     json.RawMessage `json:"id"`
		UserID string          `json:"user_id"`
	}
	if err := json.Unmarshal(e.Row, &keys); err != nil {
		return "", ""
	}
	// payments.id is numeric, users.id is text
	var s string
	if err := json.Unmarshal(keys.ID, &s); err == nil {
		id = s
	} else if len(keys.ID) > 0 {
		id = string(keys.ID)
	}
	return id, keys.UserID
}

// OwnerID returns the user the changed row belongs to.
func (e ChangeEvent) OwnerID() string {
	id, userID := e.RowID()
	if e.Table == TableUsers {
		return id
	}
	return userID
}
