// Command worker runs the tick consumer without the HTTP API or leader
// election. It is meant for setups where the API and the generation
// loop scale separately; concurrent workers are safe because trigger
// claims conflict at the database.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/RCK777-BALL/workpro-pmscheduler/internal/analytics"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/circuitbreaker"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/config"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/cron"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/domain"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/materializer"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/notifier"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/queue"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/scheduler"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/store/postgres"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/transport/channel"

	_ "github.com/lib/pq"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 2
	}
	if cfg.RedisAddr == "" {
		fmt.Fprintln(os.Stderr, "REDIS_ADDR is required: the worker consumes tick jobs from the queue")
		return 2
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return 1
	}

	st := postgres.New(db, cfg.DBOpTimeout)
	calc := cron.NewCalculator()
	bus := channel.NewEventBus(cfg.EventBusBufferSize)
	mat := materializer.New(st, calc).WithEmitter(bus)

	sched := scheduler.New(
		scheduler.Config{
			BatchSize:          cfg.BatchSize,
			MaterializeTimeout: cfg.MaterializeTimeout,
		},
		st,
		mat,
	)
	if cfg.CircuitBreakerThreshold > 0 {
		sched = sched.WithBreaker(circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown))
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	jobQueue := queue.NewRedisQueue(redisClient)
	jobWorker := queue.NewWorker(jobQueue, cfg.QueuePollInterval)
	handle := scheduler.NewHandle(sched, jobQueue, jobWorker, cfg.TickInterval)

	nf := notifier.New(st, notifier.NewHTTPWebhookSender()).
		WithDrainTimeout(cfg.NotifierDrainTimeout)
	if cfg.AnalyticsEnabled {
		nf = nf.WithAnalytics(analytics.NewRedisSink(redisClient, domain.AnalyticsConfig{
			Enabled:   true,
			Window:    cfg.AnalyticsWindow,
			Retention: cfg.AnalyticsRetention,
		}))
	}

	notifierCtx, cancelNotifier := context.WithCancel(context.Background())
	var notifierWg sync.WaitGroup
	notifierWg.Add(1)
	go func() {
		defer notifierWg.Done()
		nf.Run(notifierCtx, bus.Channel())
	}()

	if err := handle.Start(context.Background()); err != nil {
		log.Printf("worker: scheduler start error: %v", err)
	}
	if handle.State() != scheduler.StateReady {
		fmt.Fprintf(os.Stderr, "worker: scheduler did not start (state=%s)\n", handle.State())
		cancelNotifier()
		notifierWg.Wait()
		return 1
	}

	log.Printf("worker: started (tick=%s, batch=%d)", cfg.TickInterval, cfg.BatchSize)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("worker: received signal %v, shutting down", received)

	// Phase 1: Stop the tick worker (no new events emitted)
	log.Println("worker: stopping scheduler...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	if err := handle.Shutdown(shutdownCtx); err != nil {
		log.Printf("worker: scheduler shutdown error: %v", err)
	}
	cancelShutdown()
	log.Println("worker: scheduler stopped")

	// Phase 2: Stop notifier (drains buffered events before returning)
	log.Println("worker: stopping notifier (draining events)...")
	cancelNotifier()
	notifierWg.Wait()
	log.Println("worker: notifier stopped")

	if err := redisClient.Close(); err != nil {
		log.Printf("worker: redis close error: %v", err)
	}

	log.Println("worker: stopped")
	return 0
}
