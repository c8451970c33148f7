package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/giftly/metrics-reporter/internal/api"
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

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("Starting Giftly metrics reporter...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	// Database connection
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		log.Fatalf("Failed to ping database: %v", err)
	}
	cancelPing()
	log.Println("Connected to database")

	// Optional Redis client for the cross-host run lock
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Redis unavailable (%v), run locks fall back to Postgres advisory locks", err)
			redisClient = nil
		} else {
			log.Println("Connected to Redis")
		}
	}

	// Delivery channel: SES when configured, log-only otherwise
	var deliverer delivery.Deliverer
	if cfg.SES.Enabled {
		sesDeliverer, err := delivery.NewSESDeliverer(context.Background(),
			cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region,
			cfg.SES.FromAddress, cfg.SES.FromName)
		if err != nil {
			log.Fatalf("Failed to initialize SES delivery: %v", err)
		}
		deliverer = sesDeliverer
		log.Printf("SES delivery enabled (region %s)", cfg.SES.Region)
	} else {
		deliverer = delivery.LogDeliverer{}
		log.Println("SES disabled, reports will be logged instead of sent")
	}

	// Report engine wiring
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
	scheduler.Start()
	defer scheduler.Stop()

	server := api.NewServer(scheduler, db, redisClient)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // runs execute synchronously
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
