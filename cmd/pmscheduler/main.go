package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/RCK777-BALL/workpro-pmscheduler/internal/analytics"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/api"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/circuitbreaker"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/config"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/cron"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/domain"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/leaderelection"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/materializer"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/metrics"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/notifier"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/queue"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/scheduler"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/store/postgres"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/sweep"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/transport/channel"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`pmscheduler - preventive maintenance work order generator

Usage:
  pmscheduler <command>

Commands:
  serve      Start the scheduler, notifier and API server
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL               PostgreSQL connection string (required)
  REDIS_ADDR                 Redis address for the durable queue (required for scheduling)
  HTTP_ADDR                  HTTP server address (default: ":8080")

  TICK_INTERVAL              Evaluation tick cadence (default: "60s")
  BATCH_SIZE                 Max triggers evaluated per tick (default: "25")
  MATERIALIZE_TIMEOUT        Per-trigger materialization deadline (default: "30s")
  QUEUE_POLL_INTERVAL        Queue worker poll interval (default: "1s")

  DB_OP_TIMEOUT              Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS          Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS          Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME       Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME      Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT      Graceful HTTP shutdown timeout (default: "10s")
  NOTIFIER_DRAIN_TIMEOUT     Notifier event drain timeout (default: "30s")

  METRICS_ENABLED            Enable Prometheus metrics (default: "false")
  METRICS_PATH               Metrics endpoint path (default: "/metrics")

  SWEEP_ENABLED              Enable overdue trigger sweep (default: "false")
  SWEEP_INTERVAL             How often the sweep runs (default: "5m")
  SWEEP_THRESHOLD            Age past due before a trigger counts as overdue (default: "15m")

  EVENTBUS_BUFFER_SIZE       Generation event buffer capacity (default: "100")

  ANALYTICS_ENABLED          Enable per-tenant generation counters (default: "false")
  ANALYTICS_WINDOW           Counter bucket size (default: "1h")
  ANALYTICS_RETENTION        Counter TTL, must be >= window (default: "720h")

  CIRCUIT_BREAKER_THRESHOLD  Failures before a trigger is suppressed; "0" disables (default: "5")
  CIRCUIT_BREAKER_COOLDOWN   Suppression duration before a probe (default: "2m")

  LEADER_ENABLED             Run tick worker and sweep only on the elected leader (default: "false")
  LEADER_LOCK_KEY            Advisory lock key shared by all instances (default: "917204")
  LEADER_RETRY_INTERVAL      Lock acquisition retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL  Leader connection heartbeat interval (default: "2s")`)
}

// schedulerRef hands the API a stable view of whichever scheduler handle
// is current. Under leader election a new handle is created per term.
type schedulerRef struct {
	mu sync.Mutex
	h  *scheduler.Handle
}

func (r *schedulerRef) set(h *scheduler.Handle) {
	r.mu.Lock()
	r.h = h
	r.mu.Unlock()
}

func (r *schedulerRef) State() scheduler.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.h == nil {
		return scheduler.StateUninitialized
	}
	return r.h.State()
}

func (r *schedulerRef) Healthy() bool {
	return r.State() == scheduler.StateReady
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logConfigWarnings(&cfg)

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	// Configure connection pool
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	log.Printf("pmscheduler: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return exitRuntimeError
	}

	if err := probeNextRunColumn(db); err != nil {
		if err == sql.ErrNoRows {
			fmt.Fprintln(os.Stderr, "pm_triggers.next_run_at column missing; apply the schedule-state migration before starting")
			return exitRuntimeError
		}
		log.Printf("pmscheduler: could not verify schema: %v", err)
	}

	st := postgres.New(db, cfg.DBOpTimeout)
	calc := cron.NewCalculator()

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("pmscheduler: metrics enabled (path=%s)", cfg.MetricsPath)
	} else {
		log.Println("pmscheduler: METRICS_ENABLED not set; metrics disabled")
	}

	// Create event bus with optional metrics
	var busOpts []channel.Option
	if metricsSink != nil {
		busOpts = append(busOpts, channel.WithMetrics(metricsSink))
	}
	bus := channel.NewEventBus(cfg.EventBusBufferSize, busOpts...)

	mat := materializer.New(st, calc).WithEmitter(bus)

	sched := scheduler.New(
		scheduler.Config{
			BatchSize:          cfg.BatchSize,
			MaterializeTimeout: cfg.MaterializeTimeout,
		},
		st,
		mat,
	)
	if metricsSink != nil {
		sched = sched.WithMetrics(metricsSink)
	}
	if cfg.CircuitBreakerThreshold > 0 {
		sched = sched.WithBreaker(circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown))
		log.Printf("pmscheduler: circuit breaker enabled (threshold=%d, cooldown=%s)",
			cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	} else {
		log.Println("pmscheduler: CIRCUIT_BREAKER_THRESHOLD=0; circuit breaker disabled")
	}

	// Wire Redis: the durable queue drives the tick loop, and analytics
	// counters share the same client.
	var redisClient *redis.Client
	var jobQueue *queue.RedisQueue
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		jobQueue = queue.NewRedisQueue(redisClient)
	} else {
		log.Println("pmscheduler: REDIS_ADDR not set; scheduler will stay disabled")
	}

	nf := notifier.New(st, notifier.NewHTTPWebhookSender()).
		WithDrainTimeout(cfg.NotifierDrainTimeout)
	if metricsSink != nil {
		nf = nf.WithMetrics(metricsSink)
	}
	if cfg.AnalyticsEnabled && redisClient != nil {
		sink := analytics.NewRedisSink(redisClient, domain.AnalyticsConfig{
			Enabled:   true,
			Window:    cfg.AnalyticsWindow,
			Retention: cfg.AnalyticsRetention,
		})
		nf = nf.WithAnalytics(sink)
		log.Printf("pmscheduler: analytics enabled (window=%s, retention=%s)",
			cfg.AnalyticsWindow, cfg.AnalyticsRetention)
	}

	// The API sees the current handle through the ref; leader terms swap
	// the handle underneath it.
	ref := &schedulerRef{}
	apiHandler := api.NewHandler(st).
		WithHealthChecker(db).
		WithSchedulerStatus(ref)

	mux := http.NewServeMux()
	mux.Handle("/", apiHandler)
	if metricsSink != nil {
		mux.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("pmscheduler: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("pmscheduler: http server error: %v", err)
		}
	}()

	// Leader duties: the tick worker and the sweep. With leader election
	// enabled these run only while this instance holds the lock; a fresh
	// handle is built each term because a handle cannot restart.
	var dutiesMu sync.Mutex
	var dutiesHandle *scheduler.Handle
	var dutiesWg sync.WaitGroup

	startDuties := func(ctx context.Context) {
		var jq scheduler.JobQueue
		var jw scheduler.JobWorker
		if jobQueue != nil {
			jq = jobQueue
			jw = queue.NewWorker(jobQueue, cfg.QueuePollInterval)
		}
		h := scheduler.NewHandle(sched, jq, jw, cfg.TickInterval)

		dutiesMu.Lock()
		dutiesHandle = h
		dutiesMu.Unlock()
		ref.set(h)

		if err := h.Start(ctx); err != nil {
			log.Printf("pmscheduler: scheduler start error: %v", err)
		}

		if cfg.SweepEnabled {
			sw := sweep.New(
				sweep.Config{
					Interval:    cfg.SweepInterval,
					Threshold:   cfg.SweepThreshold,
					TickJobName: scheduler.TickJobName,
				},
				st,
			)
			if jobQueue != nil {
				sw = sw.WithNudger(jobQueue)
			}
			if metricsSink != nil {
				sw = sw.WithMetrics(metricsSink)
			}
			dutiesWg.Add(1)
			go func() {
				defer dutiesWg.Done()
				sw.Run(ctx)
			}()
			log.Printf("pmscheduler: sweep enabled (interval=%s, threshold=%s)",
				cfg.SweepInterval, cfg.SweepThreshold)
		}
	}

	stopDuties := func() {
		dutiesMu.Lock()
		h := dutiesHandle
		dutiesHandle = nil
		dutiesMu.Unlock()

		if h != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
			if err := h.Shutdown(shutdownCtx); err != nil {
				log.Printf("pmscheduler: scheduler shutdown error: %v", err)
			}
			cancel()
		}
		dutiesWg.Wait()
	}

	// Notifier runs on every instance; events only flow on the one
	// actually materializing, but a follower's notifier is harmless.
	notifierCtx, cancelNotifier := context.WithCancel(context.Background())
	var notifierWg sync.WaitGroup
	notifierWg.Add(1)
	go func() {
		defer notifierWg.Done()
		nf.Run(notifierCtx, bus.Channel())
	}()

	var electorWg sync.WaitGroup
	var cancelElector context.CancelFunc
	var dutiesCancel context.CancelFunc

	if cfg.LeaderEnabled {
		elector := leaderelection.New(
			db,
			cfg.LeaderLockKey,
			cfg.LeaderRetryInterval,
			cfg.LeaderHeartbeatInterval,
			startDuties,
			stopDuties,
		)
		if metricsSink != nil {
			elector = elector.WithMetrics(metricsSink)
		}
		var electorCtx context.Context
		electorCtx, cancelElector = context.WithCancel(context.Background())
		electorWg.Add(1)
		go func() {
			defer electorWg.Done()
			elector.Run(electorCtx)
		}()
		log.Printf("pmscheduler: leader election enabled (lock_key=%d)", cfg.LeaderLockKey)
	} else {
		var dutiesCtx context.Context
		dutiesCtx, dutiesCancel = context.WithCancel(context.Background())
		defer dutiesCancel()
		startDuties(dutiesCtx)
	}

	log.Printf("pmscheduler: started (tick=%s, batch=%d, http=%s)",
		cfg.TickInterval, cfg.BatchSize, cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("pmscheduler: received signal %v, shutting down", received)

	// Phase 1: Stop the tick worker and sweep (no new events emitted)
	log.Println("pmscheduler: stopping scheduler...")
	if cancelElector != nil {
		cancelElector()
		electorWg.Wait()
	} else {
		dutiesCancel()
		stopDuties()
	}
	log.Println("pmscheduler: scheduler stopped")

	// Phase 2: Stop notifier (drains buffered events before returning)
	log.Println("pmscheduler: stopping notifier (draining events)...")
	cancelNotifier()
	notifierWg.Wait()
	log.Println("pmscheduler: notifier stopped")

	// Phase 3: Stop HTTP server with graceful shutdown
	log.Println("pmscheduler: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("pmscheduler: http server shutdown error: %v", err)
	}
	log.Println("pmscheduler: http server stopped")

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Printf("pmscheduler: redis close error: %v", err)
		}
	}

	log.Println("pmscheduler: stopped")
	return exitSuccess
}

// logConfigWarnings flags configurations that start cleanly but lose
// work or visibility in production.
func logConfigWarnings(cfg *config.Config) {
	if cfg.RedisAddr == "" {
		log.Println("WARNING [P0]: REDIS_ADDR not set: the tick loop has no queue backend and no work orders will be generated")
	}

	if !cfg.SweepEnabled {
		log.Println("WARNING [P1]: SWEEP_ENABLED=false: triggers stuck past due after missed ticks will not be detected")
	}

	if !cfg.MetricsEnabled {
		log.Println("WARNING [P1]: METRICS_ENABLED=false: generation outcomes and queue health will not be observable")
	}

	if !cfg.LeaderEnabled {
		log.Println("INFO: LEADER_ENABLED=false: safe for a single instance; concurrent instances rely on claim conflicts alone")
	}

	if cfg.CircuitBreakerThreshold == 0 {
		log.Println("INFO: CIRCUIT_BREAKER_THRESHOLD=0: failing triggers are re-evaluated every tick without suppression")
	}
}

// probeNextRunColumn verifies the pm_triggers schedule-state columns
// exist. The claim path updates next_run_at directly; without the
// migration every tick fails.
func probeNextRunColumn(db *sql.DB) error {
	var name string
	return db.QueryRow(`
		SELECT column_name FROM information_schema.columns
		WHERE table_name = 'pm_triggers' AND column_name = 'next_run_at'
	`).Scan(&name)
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("pmscheduler version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
