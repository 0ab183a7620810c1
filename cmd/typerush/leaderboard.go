package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"typerush/internal/model"
	"typerush/internal/offline"
)

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the top scores",
	Long: `Display the best scores, online or from the local database.

Examples:
  typerush leaderboard
  typerush leaderboard --limit 20
  typerush leaderboard --offline`,
	Args: cobra.NoArgs,
	RunE: runLeaderboard,
}

func init() {
	leaderboardCmd.Flags().Int("limit", 10, "Number of entries to show")
}

func runLeaderboard(cmd *cobra.Command, _ []string) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	limit, _ := cmd.Flags().GetInt("limit")
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
	defer cancel()

	var entries []model.LeaderboardEntry
	if cfg.Offline {
		store, err := offline.Open(cfg.DB)
		if err != nil {
			return fmt.Errorf("open offline database: %w", err)
		}
		defer store.Close()
		entries, err = store.TopRuns(ctx, limit)
		if err != nil {
			return err
		}
	} else {
		entries, err = newClient(cfg).Leaderboard(ctx, limit)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "TypeRush Leaderboard")
	fmt.Fprintln(out)

	if len(entries) == 0 {
		fmt.Fprintln(out, "No scores recorded yet.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Play 'typerush play' to set the first high score!")
		return nil
	}

	fmt.Fprintf(out, "  %-4s  %-20s  %-8s  %s\n", "Rank", "Player", "Score", "Combo")
	fmt.Fprintf(out, "  %-4s  %-20s  %-8s  %s\n", "----", "------", "-----", "-----")
	for _, e := range entries {
		marker := ""
		if e.IsCurrent {
			marker = " <- you"
		}
		fmt.Fprintf(out, "  %-4d  %-20s  %-8d  %d%s\n", e.Rank, e.Name, e.Score, e.Combo, marker)
	}
	return nil
}
