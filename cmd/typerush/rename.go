package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename <name>",
	Short: "Change your leaderboard name",
	Long: `Set the name shown for you on the online leaderboard.

Examples:
  typerush rename "Speedy Ana"`,
	Args: cobra.ExactArgs(1),
	RunE: runRename,
}

func runRename(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()
	if cfg.Offline {
		return errors.New("offline players are named with --name")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
	defer cancel()

	user, err := newClient(cfg).Rename(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "You now appear as %s\n", user.DisplayName())
	return nil
}
