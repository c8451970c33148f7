package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/giftly/metrics-reporter/internal/config"
	"github.com/giftly/metrics-reporter/internal/delivery"
	"github.com/giftly/metrics-reporter/internal/domain"
	"github.com/giftly/metrics-reporter/internal/engine"
	"github.com/giftly/metrics-reporter/internal/format"
	"github.com/giftly/metrics-reporter/internal/metrics"
	"github.com/giftly/metrics-reporter/internal/pkg/runlock"
	"github.com/giftly/metrics-reporter/internal/recipient"
	"github.com/giftly/metrics-reporter/internal/repository/postgres"
)

// One-shot report runner, for cron jobs and manual invocations.
func main() {
	var (
		cadence    = flag.String("cadence", "", "report cadence: daily, weekly or monthly")
		dryRun     = flag.Bool("dry-run", false, "render and send to -to only, skip subscribers and audit")
		dryRunTo   = flag.String("to", "", "destination address for -dry-run")
		configPath = flag.String("config", "config/config.yaml", "path to config file")
		timeout    = flag.Duration("timeout", 10*time.Minute, "overall run timeout")
	)
	flag.Parse()

	if *cadence == "" {
		fmt.Fprintln(os.Stderr, "usage: report -cadence daily|weekly|monthly [-dry-run -to addr]")
		os.Exit(2)
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Redis unavailable (%v), using Postgres advisory locks", err)
			redisClient = nil
		}
	}

	var deliverer delivery.Deliverer
	if cfg.SES.Enabled {
		sesDeliverer, err := delivery.NewSESDeliverer(ctx,
			cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region,
			cfg.SES.FromAddress, cfg.SES.FromName)
		if err != nil {
			log.Fatalf("Failed to initialize SES delivery: %v", err)
		}
		deliverer = sesDeliverer
	} else {
		deliverer = delivery.LogDeliverer{}
	}

	objectives := make(metrics.Objectives, len(cfg.Reports.Objectives))
	for name, target := range cfg.Reports.Objectives {
		objectives[domain.MetricName(name)] = target
	}
	builder := metrics.NewBuilder(postgres.NewMetricRepo(db), objectives)
	builder.SetTopN(cfg.Reports.TopPerformers)

	reporter := engine.NewReporter(
		builder,
		recipient.NewResolver(postgres.NewRecipientRepo(db)),
		format.NewRenderer(),
		deliverer,
		postgres.NewAuditRepo(db),
		engine.WithMaxParallel(cfg.Reports.MaxParallel),
	)
	locks := func(cadence string) runlock.Lock {
		return runlock.ForCadence(redisClient, db, cadence, cfg.Reports.LockTTL())
	}
	scheduler := engine.NewScheduler(reporter, locks, cfg.Reports.Schedule)

	run, err := scheduler.RunLocked(ctx, engine.RunRequest{
		Cadence:       domain.Cadence(*cadence),
		DryRun:        *dryRun,
		DryRunAddress: *dryRunTo,
	})
	if err != nil {
		log.Fatalf("Report run failed: %v", err)
	}

	log.Printf("Run %s finished: status=%s delivered=%d/%d scopes=%d skipped=%d",
		run.ID, run.Status, run.SuccessCount(), len(run.Outcomes), run.ScopesComputed, run.Skipped)
	for _, outcome := range run.Outcomes {
		if !outcome.Success {
			log.Printf("  failed %s: %s", outcome.Address, outcome.Error)
		}
	}
	if run.Status == domain.RunFailed {
		os.Exit(1)
	}
}
