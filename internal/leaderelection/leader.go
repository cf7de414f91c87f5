// Package leaderelection elects one instance to run the tick worker and
// the sweep, using a Postgres session advisory lock. Claim conflicts
// already make concurrent evaluation safe; the election exists so that a
// fleet of instances does not burn ticks racing each other.
//
// The lock is bound to a dedicated connection and has no TTL. Postgres
// releases it server-side when the session dies, so the only local job
// is noticing that the session died: the watch loop pings the connection
// and demotes promptly on failure. The ping never renews anything.
package leaderelection

import (
	"context"
	"database/sql"
	"log"
	"time"
)

// Demotion reasons reported to the metrics sink.
const (
	ReasonShutdown = "shutdown"
	ReasonConnLost = "conn_lost"
)

// MetricsSink records election state changes. All methods must be
// non-blocking and fire-and-forget.
type MetricsSink interface {
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}

// Elector campaigns for the advisory lock and runs leader duties while
// holding it. onElected receives a context that is cancelled when
// leadership ends; it should start duties and return quickly. onDemoted
// runs synchronously after that cancellation and must block until the
// duties are fully stopped; it is called once per term.
type Elector struct {
	db        *sql.DB
	lockKey   int64
	retry     time.Duration // follower: campaign cadence
	heartbeat time.Duration // leader: session ping cadence
	onElected func(ctx context.Context)
	onDemoted func()
	metrics   MetricsSink // optional, nil = disabled
}

func New(
	db *sql.DB,
	lockKey int64,
	retry, heartbeat time.Duration,
	onElected func(ctx context.Context),
	onDemoted func(),
) *Elector {
	return &Elector{
		db:        db,
		lockKey:   lockKey,
		retry:     retry,
		heartbeat: heartbeat,
		onElected: onElected,
		onDemoted: onDemoted,
	}
}

func (e *Elector) WithMetrics(sink MetricsSink) *Elector {
	e.metrics = sink
	return e
}

// Run campaigns until ctx is cancelled. Each campaign either fails to
// get the lock (another instance leads) or serves a full leader term;
// either way the next campaign starts after the retry interval.
func (e *Elector) Run(ctx context.Context) {
	log.Printf("leader: campaigning (lock_key=%d, retry=%s, heartbeat=%s)",
		e.lockKey, e.retry, e.heartbeat)

	for ctx.Err() == nil {
		e.campaign(ctx)

		select {
		case <-ctx.Done():
		case <-time.After(e.retry):
		}
	}
	log.Println("leader: stopped")
}

// campaign makes one non-blocking grab at the lock and, on success,
// serves the term until shutdown or session death.
func (e *Elector) campaign(ctx context.Context) {
	// Session-scoped lock: it must live on its own connection, not the
	// pool, or an unrelated query could return the session.
	conn, err := e.db.Conn(ctx)
	if err != nil {
		log.Printf("leader: no dedicated connection: %v", err)
		return
	}
	defer conn.Close()

	var won bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", e.lockKey).Scan(&won); err != nil {
		log.Printf("leader: lock attempt failed: %v", err)
		return
	}
	if !won {
		return
	}

	log.Printf("leader: elected (lock_key=%d)", e.lockKey)
	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(true)
		e.metrics.LeaderAcquired()
	}

	termCtx, endTerm := context.WithCancel(ctx)
	go e.onElected(termCtx)

	reason := e.watch(ctx, conn)

	endTerm()
	e.onDemoted()

	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(false)
		e.metrics.LeaderLost(reason)
	}

	if reason == ReasonShutdown {
		// Clean handover: unlock explicitly so the next leader does not
		// wait out TCP keepalive on our dying session.
		if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", e.lockKey); err != nil {
			log.Printf("leader: unlock failed (session close will release): %v", err)
		}
	}
	log.Printf("leader: term ended (reason=%s)", reason)
}

// watch pings the lock's session until shutdown or the session dies.
func (e *Elector) watch(ctx context.Context, conn *sql.Conn) string {
	ticker := time.NewTicker(e.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ReasonShutdown
		case <-ticker.C:
			if err := conn.PingContext(ctx); err != nil {
				if ctx.Err() != nil {
					return ReasonShutdown
				}
				log.Printf("leader: session ping failed, demoting: %v", err)
				return ReasonConnLost
			}
		}
	}
}
