// Package analytics maintains Redis counters of generated work orders,
// bucketed per tenant and program over a configurable window.
package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/RCK777-BALL/workpro-pmscheduler/internal/domain"
)

type RedisSink struct {
	client *redis.Client
	config domain.AnalyticsConfig
}

func NewRedisSink(client *redis.Client, config domain.AnalyticsConfig) *RedisSink {
	return &RedisSink{client: client, config: config}
}

// Record increments the generation counter for the event's bucket.
// Counter writes are advisory; failures are logged, never propagated.
func (s *RedisSink) Record(ctx context.Context, event domain.GenerationEvent) {
	if err := s.Write(ctx, event); err != nil {
		log.Printf("analytics: write failed: %v", err)
	}
}

func (s *RedisSink) Write(ctx context.Context, event domain.GenerationEvent) error {
	if !s.config.Enabled {
		return nil
	}

	key := buildKey(event.TenantID.String(), event.ProgramID.String(), event.GeneratedAt, s.config.Window)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.config.Retention)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}

	return nil
}

func buildKey(tenantID, programID string, t time.Time, window time.Duration) string {
	bucket := truncateToBucket(t, window)
	return fmt.Sprintf("workpro:analytics:t:%s:p:%s:generated:%s", tenantID, programID, bucket)
}

func truncateToBucket(t time.Time, window time.Duration) string {
	t = t.UTC()
	switch window {
	case time.Minute:
		return t.Format("200601021504")
	case 5 * time.Minute:
		minute := (t.Minute() / 5) * 5
		return t.Format("2006010215") + fmt.Sprintf("%02d", minute)
	case time.Hour:
		return t.Format("2006010215")
	default:
		return t.Format("200601021504")
	}
}
