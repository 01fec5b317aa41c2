package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/mandi-exchange/negotiation-hub/internal/api/http"
	"github.com/mandi-exchange/negotiation-hub/internal/application/dispatch"
	"github.com/mandi-exchange/negotiation-hub/internal/application/negotiation"
	"github.com/mandi-exchange/negotiation-hub/internal/config"
	"github.com/mandi-exchange/negotiation-hub/internal/domain/collaborator"
	"github.com/mandi-exchange/negotiation-hub/internal/domain/deadlock"
	domainNegotiation "github.com/mandi-exchange/negotiation-hub/internal/domain/negotiation"
	"github.com/mandi-exchange/negotiation-hub/internal/domain/notification"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/bolt"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/memory"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/metrics"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/phrasing"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/postgres"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/pricing"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/sse"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/translation"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}
	signingKey, _ := cfg.SigningKey()

	ctx := context.Background()
	ledger, pending, closeStore, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("store error")
	}
	defer closeStore()

	collabs, err := buildCollaborators(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("collaborator error")
	}
	guard, err := negotiation.NewGuard(cfg.Session.OfferGuard)
	if err != nil {
		logger.Fatal().Err(err).Msg("offer guard error")
	}

	// infrastructure
	m := metrics.New()
	sseHub := sse.NewHub()
	dispatcher := dispatch.NewDispatcher(sseHub, pending, m, dispatch.Config{
		Workers:         cfg.Delivery.Workers,
		MaxRetries:      cfg.Delivery.MaxRetries,
		InitialInterval: cfg.Delivery.InitialBackoff,
		MaxInterval:     cfg.Delivery.MaxBackoff,
	}, logger)
	dispatcher.Start()

	registry := negotiation.NewRegistry(ledger, collabs, guard, dispatcher, m, negotiation.Config{
		Window: cfg.Session.Window,
		Policy: deadlock.Policy{
			Pairs:          cfg.Deadlock.Pairs,
			MinImprovement: cfg.Deadlock.MinImprovement,
			GapFloor:       cfg.Deadlock.GapFloor,
		},
		Timeouts: negotiation.Timeouts{
			Translation: cfg.Collab.TranslationTimeout,
			PriceBand:   cfg.Collab.PriceBandTimeout,
			Phrasing:    cfg.Collab.PhrasingTimeout,
		},
		SigningKey: signingKey,
		ArchiveTTL: cfg.Session.ArchiveTTL,
	}, logger)
	if err := registry.Recover(ctx); err != nil {
		logger.Fatal().Err(err).Msg("recovery failed")
	}

	// API server
	apiServer := httpapi.NewServer(registry, dispatcher, sseHub, m, logger)
	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// background loops
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(cfg.Session.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := registry.SweepExpired(sweepCtx); n > 0 {
					logger.Info().Int("count", n).Msg("Expired idle sessions")
				}
			case <-sweepCtx.Done():
				return
			}
		}
	}()

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Str("store", cfg.Store.Backend).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	stopSweep()
	sseHub.Stop()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
	registry.Close()
	dispatcher.Stop()
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (domainNegotiation.Ledger, notification.PendingStore, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreBolt:
		db, err := bolt.Open(cfg.Store.BoltPath)
		if err != nil {
			return nil, nil, nil, err
		}
		return bolt.NewLedger(db), bolt.NewPendingStore(db), func() { _ = db.Close() }, nil
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, nil, nil, err
		}
		if err := postgres.RunMigrations(ctx, pool, cfg.Store.MigrationsDir, logger); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return postgres.NewLedgerRepository(pool), postgres.NewPendingRepository(pool), pool.Close, nil
	default:
		return memory.NewLedger(), memory.NewPendingStore(), func() {}, nil
	}
}

// buildCollaborators layers the remote services over the built-in fallbacks.
func buildCollaborators(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (negotiation.Collaborators, error) {
	var translator collaborator.TranslationGateway = translation.NewGlossary()
	if cfg.Collab.TranslationURL != "" {
		translator = translation.Chain{
			translation.NewClient(cfg.Collab.TranslationURL, cfg.Collab.TranslationTimeout),
			translator,
		}
	}
	if cfg.Collab.RedisURL != "" {
		rdb, err := translation.NewRedis(ctx, cfg.Collab.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("translation cache disabled")
		} else {
			translator = translation.NewCached(rdb, translator, cfg.Collab.TranslationTTL, logger)
		}
	}

	var oracle collaborator.PriceBandOracle
	if cfg.Collab.PriceBandURL != "" {
		oracle = pricing.NewClient(cfg.Collab.PriceBandURL, cfg.Collab.PriceBandTimeout)
	} else {
		static, err := pricing.NewStatic(cfg.Collab.PriceBands)
		if err != nil {
			return negotiation.Collaborators{}, err
		}
		oracle = static
	}

	return negotiation.Collaborators{
		Translator: translator,
		Oracle:     pricing.NewCached(oracle, cfg.Collab.PriceBandTTL),
		Advisor:    phrasing.NewAdvisor(),
	}, nil
}
