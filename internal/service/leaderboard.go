package service

import (
	"context"
	"errors"
	"fmt"

	"typerush/internal/model"
	"typerush/internal/repository"
)

// MaxLeaderboardSize caps the requested leaderboard length.
const MaxLeaderboardSize = 100

// LeaderboardService builds the best-score ranking.
type LeaderboardService struct {
	users        UserStore
	defaultLimit int
}

// NewLeaderboardService creates a new LeaderboardService instance.
func NewLeaderboardService(users UserStore, defaultLimit int) *LeaderboardService {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	return &LeaderboardService{users: users, defaultLimit: defaultLimit}
}

// Top returns the top players by best score. When userID is set and that
// player is outside the top, they are appended with their true rank.
func (s *LeaderboardService) Top(ctx context.Context, limit int, userID string) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > MaxLeaderboardSize {
		limit = MaxLeaderboardSize
	}

	users, err := s.users.GetTop(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}

	entries := make([]model.LeaderboardEntry, 0, len(users)+1)
	found := false
	for i, u := range users {
		current := userID != "" && u.ID == userID
		found = found || current
		entries = append(entries, model.LeaderboardEntry{
			Rank:      i + 1,
			UserID:    u.ID,
			Name:      u.DisplayName(),
			Score:     u.BestScore,
			Combo:     u.BestCombo,
			IsCurrent: current,
		})
	}

	if userID == "" || found {
		return entries, nil
	}

	me, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return entries, nil
		}
		return nil, fmt.Errorf("failed to get leaderboard player: %w", err)
	}

	rank, err := s.users.RankOf(ctx, me.BestScore)
	if err != nil {
		return nil, err
	}

	return append(entries, model.LeaderboardEntry{
		Rank:      rank,
		UserID:    me.ID,
		Name:      me.DisplayName(),
		Score:     me.BestScore,
		Combo:     me.BestCombo,
		IsCurrent: true,
	}), nil
}

// TopSpender returns the highest-spending player, or nil.
func (s *LeaderboardService) TopSpender(ctx context.Context) (*model.TopSpender, error) {
	return s.users.TopSpender(ctx)
}
