// Package offline keeps scores and lives on disk for play without a server.
// Uses the pure-Go modernc.org/sqlite driver.
package offline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"typerush/internal/model"
)

// ErrNoLives is returned by ConsumeLife when no lives remain.
var ErrNoLives = errors.New("no lives remaining")

// DefaultPath is where the client keeps its database.
const DefaultPath = "~/.typerush/offline.db"

// Store is a local SQLite database of runs and remembered lives.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the database at path, creating parent directories
// and applying the schema.
func Open(path string) (*Store, error) {
	path, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("offline: cannot create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("offline: cannot open database: %w", err)
	}
	// one connection keeps :memory: databases shared and writes serialized
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("offline: cannot connect to database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("offline: migration failed: %w", err)
	}
	return s, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("offline: cannot expand home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			player TEXT NOT NULL,
			score INTEGER NOT NULL,
			combo INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_top ON runs(score DESC, created_at ASC);

		CREATE TABLE IF NOT EXISTS players (
			name TEXT PRIMARY KEY,
			lives INTEGER NOT NULL DEFAULT 0 CHECK (lives >= 0),
			best_score INTEGER NOT NULL DEFAULT 0,
			best_combo INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lives returns the remembered lives of a player.
func (s *Store) Lives(ctx context.Context, name string) (int, error) {
	var lives int
	err := s.db.QueryRowContext(ctx, `SELECT lives FROM players WHERE name = ?`, name).Scan(&lives)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("offline: cannot read lives: %w", err)
	}
	return lives, nil
}

// SetLives remembers lives for a player, clamped at zero.
func (s *Store) SetLives(ctx context.Context, name string, lives int) error {
	if lives < 0 {
		lives = 0
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (name, lives, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET lives = excluded.lives, updated_at = excluded.updated_at`,
		name, lives, s.now().Unix())
	if err != nil {
		return fmt.Errorf("offline: cannot save lives: %w", err)
	}
	return nil
}

// ConsumeLife takes one life. Returns ErrNoLives when none remain.
func (s *Store) ConsumeLife(ctx context.Context, name string) (int, error) {
	var lives int
	err := s.db.QueryRowContext(ctx, `
		UPDATE players SET lives = lives - 1, updated_at = ?
		WHERE name = ? AND lives > 0
		RETURNING lives`,
		s.now().Unix(), name).Scan(&lives)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoLives
	}
	if err != nil {
		return 0, fmt.Errorf("offline: cannot consume life: %w", err)
	}
	return lives, nil
}

// RecordRun stores a finished run and raises the player's bests.
func (s *Store) RecordRun(ctx context.Context, name string, score, combo int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("offline: cannot begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().Unix()
	if score > 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (player, score, combo, created_at) VALUES (?, ?, ?, ?)`,
			name, score, combo, now); err != nil {
			return fmt.Errorf("offline: cannot save run: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO players (name, best_score, best_combo, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			best_score = MAX(best_score, excluded.best_score),
			best_combo = MAX(best_combo, excluded.best_combo),
			updated_at = excluded.updated_at`,
		name, score, combo, now); err != nil {
		return fmt.Errorf("offline: cannot update best: %w", err)
	}
	return tx.Commit()
}

// Best returns the player's best score and combo.
func (s *Store) Best(ctx context.Context, name string) (score, combo int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT best_score, best_combo FROM players WHERE name = ?`, name).Scan(&score, &combo)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("offline: cannot read best: %w", err)
	}
	return score, combo, nil
}

// TopRuns returns the best local runs, one row per run.
func (s *Store) TopRuns(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT player, score, combo FROM runs
		ORDER BY score DESC, created_at ASC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("offline: cannot query runs: %w", err)
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.Name, &e.Score, &e.Combo); err != nil {
			return nil, fmt.Errorf("offline: cannot scan run: %w", err)
		}
		e.Rank = len(entries) + 1
		e.UserID = e.Name
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("offline: row iteration error: %w", err)
	}
	return entries, nil
}

// Player binds the store to one local player name.
type Player struct {
	store *Store
	name  string
}

// Player returns the persistence view for name. An empty name plays as "guest".
func (s *Store) Player(ctx context.Context, name string, initialLives int) (*Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "guest"
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM players WHERE name = ?)`, name).Scan(&exists); err != nil {
		return nil, fmt.Errorf("offline: cannot look up player: %w", err)
	}
	if !exists {
		if err := s.SetLives(ctx, name, initialLives); err != nil {
			return nil, err
		}
		log.Info().Str("player", name).Int("lives", initialLives).Msg("Offline player created")
	}
	return &Player{store: s, name: name}, nil
}

// Name returns the player's name.
func (p *Player) Name() string { return p.name }

// LoadLives returns the remembered lives.
func (p *Player) LoadLives(ctx context.Context) (int, error) {
	return p.store.Lives(ctx, p.name)
}

// ConsumeLife spends one remembered life.
func (p *Player) ConsumeLife(ctx context.Context) (int, error) {
	return p.store.ConsumeLife(ctx, p.name)
}

// SaveScore records a finished run.
func (p *Player) SaveScore(ctx context.Context, score, combo int) error {
	return p.store.RecordRun(ctx, p.name, score, combo)
}

// AddLives grants lives locally, e.g. the free continue after a failed purchase.
func (p *Player) AddLives(ctx context.Context, n int) (int, error) {
	lives, err := p.store.Lives(ctx, p.name)
	if err != nil {
		return 0, err
	}
	lives += n
	return lives, p.store.SetLives(ctx, p.name, lives)
}

// Best returns the player's best score and combo.
func (p *Player) Best(ctx context.Context) (score, combo int, err error) {
	return p.store.Best(ctx, p.name)
}
