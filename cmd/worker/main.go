// Package main is the NoteWise background worker.
//
// The worker applies database migrations and keeps the shared Redis
// leaderboard index in sync with the progress table. API instances without
// Redis rebuild their own in-process index and do not need it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/notewise/notewise-backend/config"
	"github.com/notewise/notewise-backend/internal/infrastructure/persistence/postgres"
	"github.com/notewise/notewise-backend/internal/infrastructure/persistence/redis"
	"github.com/notewise/notewise-backend/internal/infrastructure/scheduler"
	"github.com/notewise/notewise-backend/internal/infrastructure/scheduler/jobs"
	"github.com/notewise/notewise-backend/pkg/circuitbreaker"
	"github.com/notewise/notewise-backend/pkg/logger"
)

func main() {
	once := flag.Bool("once", false, "run every job a single time and exit")
	migrateOnly := flag.Bool("migrate", false, "apply migrations and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *once, *migrateOnly); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, once, migrateOnly bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewFromMode(string(cfg.App.Environment), logger.ParseLevel(cfg.Observability.LogLevel)).
		Named("worker")
	defer log.Sync()

	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required for the worker")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 1. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	conn, err := postgres.Open(ctx, postgres.Options{
		URL:              cfg.Database.URL,
		MaxConns:         cfg.Database.MaxConns,
		StatementTimeout: cfg.Database.QueryTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	n, err := postgres.NewMigrator(conn).Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("migrations applied", logger.Int("count", n))

	if migrateOnly {
		return nil
	}
	if !cfg.Redis.Configured() {
		log.Info("Redis not configured, nothing to index")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LEADERBOARD INDEX
	// ─────────────────────────────────────────────────────────────────────────
	var cache *redis.Cache
	if cfg.Redis.URL != "" {
		cache, err = redis.NewCacheFromURL(cfg.Redis.URL)
	} else {
		rc := redis.DefaultConfig()
		rc.Host = cfg.Redis.Host
		rc.Port = cfg.Redis.Port
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		rc.KeyPrefix = cfg.Redis.KeyPrefix
		cache, err = redis.NewCache(rc)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer cache.Close()

	breaker := redis.NewBreaker(func(_ string, from, to circuitbreaker.State) {
		log.Warn("redis circuit breaker state changed",
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})

	rebuild := jobs.NewRebuildLeaderboardJob(
		postgres.NewProgressRepository(conn),
		redis.NewLeaderboardCache(cache, breaker),
		log,
		jobs.RebuildLeaderboardConfig{Size: cfg.Scheduler.LeaderboardSize},
	)

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:     log,
		JobTimeout: cfg.Scheduler.JobTimeout,
	})
	if err := sched.Cron(rebuild, cfg.Scheduler.RebuildLeaderboardCron); err != nil {
		return err
	}

	if _, err := sched.RunNow(rebuild.Name()); err != nil {
		if once {
			return err
		}
		log.Warn("initial leaderboard rebuild failed", logger.Err(err))
	}
	if once {
		return nil
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	log.Info("worker started", logger.String("rebuild_schedule", cfg.Scheduler.RebuildLeaderboardCron))
	<-ctx.Done()
	log.Info("worker stopping")
	return nil
}
