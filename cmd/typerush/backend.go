package main

import (
	"context"

	"typerush/internal/apiclient"
	"typerush/internal/model"
	"typerush/internal/offline"
)

// onlineShop sells hearts through the API and streams the player's row.
type onlineShop struct {
	*apiclient.Client
}

func (s onlineShop) Updates(ctx context.Context) (<-chan model.ChangeEvent, error) {
	return s.Subscribe(ctx, model.TableUsers)
}

// offlineBackend keeps lives and scores in the local database.
type offlineBackend struct {
	*offline.Player
	store *offline.Store
}

func (b offlineBackend) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	entries, err := b.store.TopRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].IsCurrent = entries[i].Name == b.Name()
	}
	return entries, nil
}
