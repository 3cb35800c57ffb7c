// Package main is the entry point of the NoteWise progress API.
//
// The server exposes the progress engine and tutoring sessions over HTTP.
// It runs against PostgreSQL when DATABASE_URL is set and against an
// in-memory store otherwise; Redis, when configured, backs the progress
// cache, the leaderboard index and cross-instance event fan-out.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/notewise/notewise-backend/config"
	"github.com/notewise/notewise-backend/internal/application/command"
	"github.com/notewise/notewise-backend/internal/application/eventhandler"
	"github.com/notewise/notewise-backend/internal/application/query"
	"github.com/notewise/notewise-backend/internal/domain/progress"
	"github.com/notewise/notewise-backend/internal/domain/shared"
	"github.com/notewise/notewise-backend/internal/infrastructure/external/tutor"
	"github.com/notewise/notewise-backend/internal/infrastructure/messaging"
	"github.com/notewise/notewise-backend/internal/infrastructure/persistence/memory"
	"github.com/notewise/notewise-backend/internal/infrastructure/persistence/postgres"
	"github.com/notewise/notewise-backend/internal/infrastructure/persistence/projections"
	"github.com/notewise/notewise-backend/internal/infrastructure/persistence/redis"
	"github.com/notewise/notewise-backend/internal/infrastructure/scheduler"
	"github.com/notewise/notewise-backend/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/notewise/notewise-backend/internal/interface/http"
	"github.com/notewise/notewise-backend/internal/interface/http/handlers"
	"github.com/notewise/notewise-backend/pkg/circuitbreaker"
	"github.com/notewise/notewise-backend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// eventBus is what the server needs from either bus implementation.
type eventBus interface {
	shared.EventPublisher
	shared.EventSubscriber
	Close() error
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := newLogger(cfg)
	defer log.Sync()
	log.Info("starting NoteWise API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)

	health := handlers.NewHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	var (
		repo      progress.Repository
		badgeRepo progress.BadgeRepository
	)
	if cfg.Database.URL != "" {
		conn, err := postgres.Open(ctx, postgres.Options{
			URL:              cfg.Database.URL,
			MaxConns:         cfg.Database.MaxConns,
			StatementTimeout: cfg.Database.QueryTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer conn.Close()

		if cfg.Database.AutoMigrate {
			n, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("migrations applied", logger.Int("count", n))
		}

		repo = postgres.NewProgressRepository(conn)
		badgeRepo = postgres.NewBadgeRepository(conn)
		health.AddCheck("postgres", handlers.PingCheck(conn))
		log.Info("using PostgreSQL progress store")
	} else {
		repo = memory.NewProgressStore()
		badgeRepo = memory.NewBadgeStore()
		log.Warn("DATABASE_URL not set, progress is kept in memory")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (optional): cache, leaderboard index, event fan-out
	// ─────────────────────────────────────────────────────────────────────────
	var (
		cache       progress.Cache
		leaderboard progress.Leaderboard
		localIndex  bool
		bus         eventBus
	)

	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log

	if cfg.Redis.Configured() {
		redisCache, err := newRedisCache(cfg.Redis)
		if err != nil {
			log.Warn("failed to connect to Redis, running without it", logger.Err(err))
		} else {
			defer redisCache.Close()
			health.AddCheck("redis", handlers.PingCheck(redisCache))

			breaker := redis.NewBreaker(func(_ string, from, to circuitbreaker.State) {
				log.Warn("redis circuit breaker state changed",
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			})
			cache = redis.NewProgressCache(redisCache, breaker, cfg.Redis.CacheTTL)
			if cfg.Features.IsEnabled(config.FeatureLeaderboardIndex, "") {
				leaderboard = redis.NewLeaderboardCache(redisCache, breaker)
			}

			if cfg.Features.IsEnabled(config.FeatureEventFanout, "") {
				redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
					Client:         redis.NewPubSub(redisCache),
					LocalBusConfig: busConfig,
					Logger:         log,
				})
				if err != nil {
					log.Warn("redis event fan-out unavailable, using local bus", logger.Err(err))
				} else {
					bus = redisBus
				}
			}
			log.Info("Redis connection established")
		}
	}

	if leaderboard == nil && cfg.Features.IsEnabled(config.FeatureLeaderboardIndex, "") {
		leaderboard = projections.NewLeaderboardView()
		localIndex = true
	}
	if bus == nil {
		bus = messaging.NewInMemoryEventBus(busConfig)
	}
	defer func() { _ = bus.Close() }()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	if leaderboard != nil || cache != nil {
		if err := eventhandler.NewProgressProjector(leaderboard, cache, log).Register(bus); err != nil {
			return fmt.Errorf("failed to register projector: %w", err)
		}
	}

	recorder := command.NewRecordProgressHandler(repo, badgeRepo, bus, command.RecordProgressHandlerConfig{
		Rules:          cfg.Progress.Rules,
		DisabledBadges: cfg.EffectiveDisabledBadges(),
		Logger:         log,
	})

	var tutoringManager *command.TutoringManager
	if cfg.Tutor.Enabled() {
		clientCfg := tutor.DefaultClientConfig(cfg.Tutor.BaseURL, cfg.Tutor.APIKey, cfg.Tutor.Model)
		clientCfg.Timeout = cfg.Tutor.RequestTimeout
		clientCfg.RateLimiterConfig.RequestsPerSecond = cfg.Tutor.RequestsPerSecond
		clientCfg.RateLimiterConfig.BurstSize = cfg.Tutor.Burst
		clientCfg.Logger = log

		tutoringManager = command.NewTutoringManager(tutor.NewTransport(tutor.NewClient(clientCfg)), recorder,
			command.TutoringManagerConfig{
				MaxSessionsPerUser: cfg.Tutor.MaxSessionsPerUser,
				Logger:             log,
			})
	} else {
		log.Warn("TUTOR_API_KEY not set, tutoring routes are disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. BACKGROUND JOBS
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:     log,
		JobTimeout: cfg.Scheduler.JobTimeout,
	})
	if localIndex {
		rebuild := jobs.NewRebuildLeaderboardJob(repo, leaderboard, log,
			jobs.RebuildLeaderboardConfig{Size: cfg.Scheduler.LeaderboardSize})
		if err := sched.Cron(rebuild, cfg.Scheduler.RebuildLeaderboardCron); err != nil {
			return err
		}
		if _, err := sched.RunNow(rebuild.Name()); err != nil {
			log.Warn("initial leaderboard load failed", logger.Err(err))
		}
	}
	if tutoringManager != nil {
		reap := jobs.NewReapTutoringJob(tutoringManager, cfg.Tutor.IdleTimeout)
		if err := sched.Every(reap, cfg.Scheduler.ReapInterval, false); err != nil {
			return err
		}
	}
	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpCfg.APIKeyHashes = cfg.HTTP.APIKeyHashes
	if cfg.App.Debug {
		httpCfg.Mode = "debug"
	}

	server := httpapi.NewServer(httpCfg, httpapi.Dependencies{
		RecordProgress: recorder,
		Tutoring:       tutoringManager,
		TutoringAllowed: func(userID string) bool {
			return cfg.Features.IsEnabled(config.FeatureTutoring, userID)
		},
		GetProgress:    query.NewGetProgressHandler(repo, badgeRepo, cache, leaderboard, nil, log),
		GetLeaderboard: query.NewGetLeaderboardHandler(repo, leaderboard, log),
		Health:         health,
		Logger:         log,
	})
	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Error("http shutdown failed", logger.Err(err))
	}
	if tutoringManager != nil {
		tutoringManager.CloseAll(shutdownCtx)
	}

	log.Info("shutdown completed", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	return nil
}

func newLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	if cfg.Observability.LogFormat == "console" {
		opts.Format = logger.FormatConsole
	}
	return logger.New(opts)
}

func newRedisCache(cfg config.RedisConfig) (*redis.Cache, error) {
	var (
		cache *redis.Cache
		err   error
	)
	if cfg.URL != "" {
		cache, err = redis.NewCacheFromURL(cfg.URL)
	} else {
		rc := redis.DefaultConfig()
		rc.Host = cfg.Host
		rc.Port = cfg.Port
		rc.Password = cfg.Password
		rc.DB = cfg.DB
		rc.KeyPrefix = cfg.KeyPrefix
		cache, err = redis.NewCache(rc)
	}
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cache.Ping(ctx); err != nil {
		_ = cache.Close()
		return nil, err
	}
	return cache, nil
}
