// Package main is the entry point for the TypeRush API server.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"typerush/internal/auth"
	"typerush/internal/cache"
	"typerush/internal/config"
	"typerush/internal/model"
	"typerush/internal/notify"
	"typerush/internal/payment"
	"typerush/internal/pkg/db"
	"typerush/internal/pkg/lock"
	"typerush/internal/realtime"
	"typerush/internal/repository"
	"typerush/internal/server"
	"typerush/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.DefaultContextLogger = &log.Logger

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.IsProduction() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Str("env", cfg.App.Env).Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
	log.Info().Msg("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	if err := repository.Migrate(ctx, dbPool.Pool); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	// Read cache in front of user lookups
	var userCache cache.Cache
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedis(ctx, &cfg.Redis, cfg.App.Name)
		if err != nil {
			return err
		}
		defer rc.Close()
		userCache = rc
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis user cache")
	} else {
		mem := cache.NewMemory()
		g.Go(func() error {
			mem.RunSweeper(ctx, time.Minute)
			return nil
		})
		userCache = mem
	}

	// Initialize repositories
	userRepo := repository.NewCachedUserRepository(
		repository.NewUserRepository(dbPool.Pool), userCache, cfg.Cache.TTL)
	paymentRepo := repository.NewPaymentRepository(dbPool.Pool)

	userLock := lock.NewUserLock()

	price, err := cfg.Whop.PriceDecimal()
	if err != nil {
		return err
	}
	catalog, err := payment.NewCatalog(price, cfg.Whop.Currency)
	if err != nil {
		return err
	}
	client := payment.NewClient(payment.ClientOptions{
		BaseURL:             cfg.Whop.APIBaseURL,
		APIKey:              cfg.Whop.APIKey,
		CompanyID:           cfg.Whop.CompanyID,
		CheckoutURLTemplate: cfg.Whop.CheckoutURLTemplate,
		Timeout:             cfg.Whop.RequestTimeout,
	}, catalog)

	// Initialize services
	accountService := service.NewAccountService(userRepo, userLock, cfg.Game.InitialLives)
	leaderboardService := service.NewLeaderboardService(userRepo, cfg.Game.LeaderboardSize)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Telegram.Token != "" {
		bot, err := notify.NewTelegram(cfg, leaderboardService)
		if err != nil {
			return err
		}
		g.Go(func() error { return bot.Run(ctx) })
		notifier = bot
	} else {
		log.Warn().Msg("Telegram token not set, payment notifications disabled")
	}

	paymentService := service.NewPaymentService(service.PaymentDeps{
		Users:            userRepo,
		Payments:         paymentRepo,
		Checkout:         client,
		Catalog:          catalog,
		Notifier:         notifier,
		Locks:            userLock,
		HeartsPerPayment: cfg.Game.HeartsPerPayment,
	})

	verifier, err := auth.NewVerifier(auth.Options{
		Header:       cfg.Auth.Header,
		PublicKeyPEM: cfg.Auth.PublicKeyPEM,
		Issuer:       cfg.Auth.Issuer,
		Audience:     cfg.Whop.AppID,
		DevUserID:    cfg.Auth.DevUserID,
		Production:   cfg.IsProduction(),
	})
	if err != nil {
		return err
	}

	// Change feed: database NOTIFY -> cache invalidation -> websocket subscribers
	hub := realtime.NewHub(realtime.DefaultBuffer)
	defer hub.Close()
	feed := realtime.NewFeed(dbPool.Listen, repository.ChangeChannel, hub)
	feed.OnEvent(func(ctx context.Context, ev model.ChangeEvent) {
		if ev.Table == model.TableUsers {
			userRepo.Invalidate(ctx, ev.OwnerID())
		}
	})
	g.Go(func() error {
		if err := feed.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	srv := server.New(&server.Dependencies{
		Config:      &cfg.Server,
		Verifier:    verifier,
		Accounts:    accountService,
		Leaderboard: leaderboardService,
		Payments:    paymentService,
		Webhooks:    payment.NewWebhookValidator(cfg.Whop.WebhookSecret, cfg.Whop.WebhookTolerance),
		Hub:         hub,
		Health: func(ctx context.Context) error {
			return dbPool.HealthCheck(ctx)
		},
	})
	g.Go(func() error {
		err := srv.Run(ctx)
		// hijacked websocket connections outlive Shutdown
		hub.Close()
		return err
	})

	return g.Wait()
}
