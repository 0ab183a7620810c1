// typerush is the terminal client for the falling-word typing game.
//
// Usage:
//
//	typerush                 - Play (same as "typerush play")
//	typerush play            - Play online, or locally with --offline
//	typerush leaderboard     - Show the top scores
//	typerush stats           - Show your spending and the top spender
//	typerush rename <name>   - Change your leaderboard name
//
// Settings come from flags, TYPERUSH_* environment variables and
// ~/.typerush/client.yaml, in that order.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"typerush/internal/config"
	"typerush/internal/offline"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "typerush",
	Short: "TypeRush - pop falling words by typing them",
	Long: `TypeRush drops words from the top of the screen. Type a word to pop
it before it crosses the line at the bottom. Every miss costs a heart;
when the hearts run out the game is over, and online players can buy
more hearts to keep their score going.

Examples:
  typerush --token $WHOP_USER_TOKEN
  typerush play --offline --name ana
  typerush leaderboard
  typerush stats`,
	SilenceUsage: true,
	RunE:         runPlay,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("server", "http://localhost:8080", "API server URL")
	pf.String("token", "", "Platform user token")
	pf.String("token-header", "x-whop-user-token", "Header carrying the user token")
	pf.Bool("offline", false, "Play locally without the server")
	pf.String("db", offline.DefaultPath, "Path to the offline database")
	pf.String("name", "", "Player name for offline play")
	pf.Duration("timeout", 10*time.Second, "Timeout for server calls")
	pf.String("log-file", "~/.typerush/client.log", "Path to the client log")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")

	addPlayFlags(rootCmd.Flags())
	addPlayFlags(playCmd.Flags())

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(leaderboardCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(renameCmd)
}

// loadConfig reads the client configuration and points the global logger
// at the log file, since the terminal belongs to the game.
func loadConfig(cmd *cobra.Command) (*config.ClientConfig, func(), error) {
	cfg, err := config.LoadClient(cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	path, err := offline.ExpandHome(cfg.LogFile)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger

	return cfg, func() { _ = f.Close() }, nil
}
