package offline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typerush/internal/game/typing"
)

var _ typing.Persistence = (*Player)(nil)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "offline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/.typerush/x.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".typerush", "x.db"), got)

	got, err = ExpandHome("/tmp/x.db")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", got)
}

func TestPlayerLives(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	p, err := s.Player(ctx, "  ", 2)
	require.NoError(t, err)
	assert.Equal(t, "guest", p.Name())

	lives, err := p.LoadLives(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, lives)

	lives, err = p.ConsumeLife(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, lives)
	_, err = p.ConsumeLife(ctx)
	require.NoError(t, err)

	_, err = p.ConsumeLife(ctx)
	assert.ErrorIs(t, err, ErrNoLives)

	lives, err = p.AddLives(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, lives)

	// reopening an existing player keeps the remembered lives
	p, err = s.Player(ctx, "guest", 2)
	require.NoError(t, err)
	lives, err = p.LoadLives(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, lives)

	require.NoError(t, s.SetLives(ctx, "guest", -5))
	lives, _ = s.Lives(ctx, "guest")
	assert.Equal(t, 0, lives)
}

func TestUnknownPlayerHasNoLives(t *testing.T) {
	s := openStore(t)
	lives, err := s.Lives(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, lives)

	score, combo, err := s.Best(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, score)
	assert.Zero(t, combo)
}

func TestRecordRunKeepsBestAndLeaderboard(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	ann, err := s.Player(ctx, "ann", 0)
	require.NoError(t, err)
	bob, err := s.Player(ctx, "bob", 0)
	require.NoError(t, err)

	require.NoError(t, ann.SaveScore(ctx, 300, 4))
	require.NoError(t, ann.SaveScore(ctx, 120, 9))
	require.NoError(t, bob.SaveScore(ctx, 200, 2))
	require.NoError(t, bob.SaveScore(ctx, 0, 0))

	score, combo, err := ann.Best(ctx)
	require.NoError(t, err)
	assert.Equal(t, 300, score)
	assert.Equal(t, 9, combo)

	top, err := s.TopRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 3, "zero-score runs are not listed")
	assert.Equal(t, "ann", top[0].Name)
	assert.Equal(t, 300, top[0].Score)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, "bob", top[1].Name)
	assert.Equal(t, 3, top[2].Rank)

	top, err = s.TopRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestConcurrentConsumeNeverGoesNegative(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	p, err := s.Player(ctx, "ann", 5)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.ConsumeLife(ctx); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, success)
	lives, err := p.LoadLives(ctx)
	require.NoError(t, err)
	assert.Zero(t, lives)
}
