// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"typerush/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrNoLives      = errors.New("no lives left")
)

const userColumns = `id, username, name, lives, best_score, best_combo,
	total_spent, payment_count, last_payment_date, created_at, updated_at`

// UserRepository handles user data persistence.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Name,
		&user.Lives,
		&user.BestScore,
		&user.BestCombo,
		&user.TotalSpent,
		&user.PaymentCount,
		&user.LastPaymentAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// queryUser runs a single-row user query and maps pgx.ErrNoRows to ErrUserNotFound.
func (r *UserRepository) queryUser(ctx context.Context, op, query string, args ...any) (*model.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return user, nil
}

// Create inserts a new user holding the given number of lives.
func (r *UserRepository) Create(ctx context.Context, id, username, name string, lives int) (*model.User, error) {
	query := `
		INSERT INTO users (id, username, name, lives, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, id, username, name, lives))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by id.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.queryUser(ctx, "get user", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByUsername retrieves a user by platform username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.queryUser(ctx, "get user by username",
		`SELECT `+userColumns+` FROM users WHERE username = $1 ORDER BY created_at LIMIT 1`, username)
}

// GetOrCreate retrieves a user by id, creating one if it doesn't exist.
// The bool result reports whether the user was created.
func (r *UserRepository) GetOrCreate(ctx context.Context, id, username, name string, initialLives int) (*model.User, bool, error) {
	user, err := r.GetByID(ctx, id)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user, err = r.Create(ctx, id, username, name, initialLives)
	if err != nil {
		// another request may have created the user first
		user, err = r.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return user, false, nil
	}

	return user, true, nil
}

// UpdateProfile refreshes the username and display name. Empty values keep
// the stored ones.
func (r *UserRepository) UpdateProfile(ctx context.Context, id, username, name string) (*model.User, error) {
	query := `
		UPDATE users
		SET username = COALESCE(NULLIF($2, ''), username),
		    name = COALESCE(NULLIF($3, ''), name),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	return r.queryUser(ctx, "update profile", query, id, username, name)
}

// SetLives sets a user's lives to an exact value.
func (r *UserRepository) SetLives(ctx context.Context, id string, lives int) (*model.User, error) {
	query := `
		UPDATE users
		SET lives = GREATEST($2, 0), updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	return r.queryUser(ctx, "set lives", query, id, lives)
}

// AddLives adds delta lives. The result never drops below zero.
func (r *UserRepository) AddLives(ctx context.Context, id string, delta int) (*model.User, error) {
	query := `
		UPDATE users
		SET lives = GREATEST(lives + $2, 0), updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	return r.queryUser(ctx, "add lives", query, id, delta)
}

// ConsumeLife takes one life. Returns ErrNoLives when the user has none.
func (r *UserRepository) ConsumeLife(ctx context.Context, id string) (*model.User, error) {
	query := `
		UPDATE users
		SET lives = lives - 1, updated_at = NOW()
		WHERE id = $1 AND lives > 0
		RETURNING ` + userColumns

	user, err := r.queryUser(ctx, "consume life", query, id)
	if errors.Is(err, ErrUserNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrNoLives
	}
	return user, err
}

// SaveBest raises best_score and best_combo independently. Lower values
// leave the stored bests untouched.
func (r *UserRepository) SaveBest(ctx context.Context, id string, score, combo int) (*model.User, error) {
	query := `
		UPDATE users
		SET best_score = GREATEST(best_score, $2),
		    best_combo = GREATEST(best_combo, $3),
		    updated_at = CASE
		        WHEN $2 > best_score OR $3 > best_combo THEN NOW()
		        ELSE updated_at
		    END
		WHERE id = $1
		RETURNING ` + userColumns

	return r.queryUser(ctx, "save best score", query, id, score, combo)
}

// RecordSpend adds a payment to the user's spending summary and grants hearts.
func (r *UserRepository) RecordSpend(ctx context.Context, id string, amount decimal.Decimal, hearts int, at time.Time) (*model.User, error) {
	query := `
		UPDATE users
		SET total_spent = total_spent + $2,
		    lives = lives + $3,
		    payment_count = payment_count + 1,
		    last_payment_date = $4,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	return r.queryUser(ctx, "record spend", query, id, amount, hearts, at)
}

// GetTop retrieves the top N users by best score. Ties go to the earlier account.
func (r *UserRepository) GetTop(ctx context.Context, limit int) ([]*model.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		ORDER BY best_score DESC, created_at ASC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// RankOf returns 1 + the number of users with a strictly higher best score.
func (r *UserRepository) RankOf(ctx context.Context, bestScore int) (int, error) {
	const query = `SELECT COUNT(*) FROM users WHERE best_score > $1`

	var higher int
	if err := r.pool.QueryRow(ctx, query, bestScore).Scan(&higher); err != nil {
		return 0, fmt.Errorf("failed to rank score: %w", err)
	}
	return higher + 1, nil
}

// TopSpender returns the user with the highest total spend, or nil if
// nobody has paid yet.
func (r *UserRepository) TopSpender(ctx context.Context) (*model.TopSpender, error) {
	const query = `
		SELECT COALESCE(NULLIF(name, ''), NULLIF(username, ''), 'Anonymous'), total_spent
		FROM users
		WHERE total_spent > 0
		ORDER BY total_spent DESC, last_payment_date ASC
		LIMIT 1
	`

	var top model.TopSpender
	err := r.pool.QueryRow(ctx, query).Scan(&top.Name, &top.TotalSpent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get top spender: %w", err)
	}
	return &top, nil
}

// Ping checks the database is reachable.
func (r *UserRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
