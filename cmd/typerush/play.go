package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"typerush/internal/apiclient"
	"typerush/internal/config"
	"typerush/internal/game/typing"
	"typerush/internal/offline"
	"typerush/internal/tui"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a game",
	Long: `Start the game.

Controls:
  Enter      - Start a run
  (letters)  - Type the falling words
  Esc        - Back to the menu (the score is saved)
  Ctrl+C     - Quit

After a game over online, pick how many hearts to buy with ←/→ or 1-3
and press Enter for a checkout link. Press p once you have paid.

Examples:
  typerush play --token $WHOP_USER_TOKEN
  typerush play --offline --name ana
  typerush play --constrained --words ./words.yaml`,
	Args: cobra.NoArgs,
	RunE: runPlay,
}

func addPlayFlags(fs *pflag.FlagSet) {
	fs.String("words", "", "Path to a YAML word list")
	fs.Bool("constrained", false, "Lower frame rate and fewer particles")
	fs.Int64("seed", 0, "RNG seed (0 = random based on time)")
	fs.Int("initial-lives", 3, "Lives for a new offline player")
}

func runPlay(cmd *cobra.Command, _ []string) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()

	vocab := typing.DefaultVocabulary()
	if cfg.Words != "" {
		if vocab, err = typing.LoadVocabulary(cfg.Words); err != nil {
			return err
		}
	}

	var sess *session
	if cfg.Offline {
		sess, err = openOffline(ctx, cfg)
	} else {
		sess, err = openOnline(ctx, cfg)
	}
	if err != nil {
		return err
	}
	defer sess.close()

	log.Info().
		Str("player", sess.player).
		Bool("offline", cfg.Offline).
		Int("lives", sess.lives).
		Msg("Starting game")

	runner := typing.NewRunner(typing.RunnerOptions{
		Config:      typing.Config{Constrained: cfg.Constrained},
		Vocabulary:  vocab,
		Seed:        cfg.Seed,
		Store:       sess.backend,
		Lives:       sess.lives,
		BestScore:   sess.bestScore,
		BestCombo:   sess.bestCombo,
		CallTimeout: cfg.Timeout,
	})

	return tui.Run(ctx, tui.Options{
		Runner:      runner,
		Backend:     sess.backend,
		Shop:        sess.shop,
		Player:      sess.player,
		CallTimeout: cfg.Timeout,
	})
}

// session is everything a game needs from its store.
type session struct {
	backend   tui.Backend
	shop      tui.Shop
	player    string
	lives     int
	bestScore int
	bestCombo int
	close     func()
}

func openOnline(ctx context.Context, cfg *config.ClientConfig) (*session, error) {
	client := newClient(cfg)

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	user, err := client.Me(callCtx)
	if err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			return nil, fmt.Errorf("the server rejected the token; pass --token or set TYPERUSH_TOKEN")
		}
		return nil, fmt.Errorf("cannot reach %s: %w", cfg.Server, err)
	}

	return &session{
		backend:   client,
		shop:      onlineShop{client},
		player:    user.DisplayName(),
		lives:     user.Lives,
		bestScore: user.BestScore,
		bestCombo: user.BestCombo,
		close:     func() {},
	}, nil
}

func openOffline(ctx context.Context, cfg *config.ClientConfig) (*session, error) {
	store, err := offline.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	player, err := store.Player(ctx, cfg.Name, cfg.InitialLives)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	lives, err := player.LoadLives(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	score, combo, err := player.Best(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &session{
		backend:   offlineBackend{Player: player, store: store},
		player:    player.Name(),
		lives:     lives,
		bestScore: score,
		bestCombo: combo,
		close:     func() { _ = store.Close() },
	}, nil
}

func newClient(cfg *config.ClientConfig) *apiclient.Client {
	return apiclient.New(apiclient.Options{
		BaseURL:     cfg.Server,
		Token:       cfg.Token,
		TokenHeader: cfg.TokenHeader,
		Timeout:     cfg.Timeout,
	})
}
