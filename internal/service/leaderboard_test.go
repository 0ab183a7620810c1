package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"typerush/internal/model"
	"typerush/internal/service/servicetest"
)

func seedScores(users *servicetest.Users, scores ...int) {
	for i, s := range scores {
		users.Put(&model.User{ID: fmt.Sprintf("u%d", i+1), Username: fmt.Sprintf("player%d", i+1), BestScore: s})
	}
}

func TestLeaderboardTopOrdersByBestScore(t *testing.T) {
	users := servicetest.NewUsers()
	seedScores(users, 100, 500, 300)
	svc := NewLeaderboardService(users, 10)

	entries, err := svc.Top(context.Background(), 0, "")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "u2", entries[0].UserID)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "u3", entries[1].UserID)
	assert.Equal(t, "player1", entries[2].Name)
}

func TestLeaderboardAppendsCallerOutsideTop(t *testing.T) {
	users := servicetest.NewUsers()
	seedScores(users, 900, 800, 700, 10)
	svc := NewLeaderboardService(users, 2)

	entries, err := svc.Top(context.Background(), 2, "u4")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	me := entries[2]
	assert.Equal(t, "u4", me.UserID)
	assert.Equal(t, 4, me.Rank)
	assert.True(t, me.IsCurrent)

	entries, err = svc.Top(context.Background(), 2, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2, "caller inside the top is not duplicated")
	assert.True(t, entries[0].IsCurrent)

	entries, err = svc.Top(context.Background(), 2, "unknown")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

// TestLeaderboardRankProperty checks an appended caller's rank equals one
// plus the number of players with a strictly higher best score.
func TestLeaderboardRankProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		scores := rapid.SliceOfN(rapid.IntRange(0, 1000), 2, 30).Draw(t, "scores")
		limit := rapid.IntRange(1, len(scores)).Draw(t, "limit")
		who := rapid.IntRange(0, len(scores)-1).Draw(t, "who")

		users := servicetest.NewUsers()
		seedScores(users, scores...)
		svc := NewLeaderboardService(users, limit)

		id := fmt.Sprintf("u%d", who+1)
		entries, err := svc.Top(context.Background(), limit, id)
		if err != nil {
			t.Fatal(err)
		}

		higher := 0
		for _, s := range scores {
			if s > scores[who] {
				higher++
			}
		}

		var me *model.LeaderboardEntry
		for i := range entries {
			if entries[i].UserID == id {
				me = &entries[i]
			}
		}
		if me == nil {
			t.Fatalf("caller %s missing from leaderboard", id)
		}
		if len(entries) > limit && me.Rank != higher+1 {
			t.Fatalf("appended rank = %d, want %d", me.Rank, higher+1)
		}
		for i := 1; i < limit && i < len(entries); i++ {
			if entries[i].Score > entries[i-1].Score {
				t.Fatalf("leaderboard not sorted at %d", i)
			}
		}
	})
}

func TestTopSpender(t *testing.T) {
	users := servicetest.NewUsers()
	svc := NewLeaderboardService(users, 10)

	top, err := svc.TopSpender(context.Background())
	require.NoError(t, err)
	assert.Nil(t, top)

	users.Put(&model.User{ID: "a", Name: "Ann", TotalSpent: decimal.NewFromInt(2)})
	users.Put(&model.User{ID: "b", Name: "Ben", TotalSpent: decimal.NewFromInt(7)})

	top, err = svc.TopSpender(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ben", top.Name)
}
