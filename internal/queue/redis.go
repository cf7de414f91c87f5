// Package queue provides a Redis-backed durable job queue with
// repeatable jobs. Registrations survive process restarts: the schedule
// lives in a sorted set keyed by next fire time, with the cadence in a
// companion hash, and claiming is atomic so two workers sharing the
// backend never run the same fire twice.
package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyRepeat      = "workpro:queue:repeat"       // zset: member=job name, score=next fire (unix ms)
	keyRepeatEvery = "workpro:queue:repeat:every" // hash: job name -> interval ms
)

// claimScript pops due repeatable jobs and reschedules them in one
// atomic step. Jobs without a recorded cadence are dropped from the set.
var claimScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for i, name in ipairs(due) do
  local every = redis.call('HGET', KEYS[2], name)
  if every then
    redis.call('ZADD', KEYS[1], tonumber(ARGV[1]) + tonumber(every), name)
  else
    redis.call('ZREM', KEYS[1], name)
  end
end
return due
`)

// RepeatableJob describes one durable registration.
type RepeatableJob struct {
	Name       string
	Every      time.Duration
	NextFireAt time.Time
}

type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// EnsureRepeatable registers name to fire every interval. Existing
// registrations keep their next fire time; only a changed cadence is
// rewritten. Safe to call on every startup.
func (q *RedisQueue) EnsureRepeatable(ctx context.Context, name string, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("queue: repeat interval must be positive, got %s", every)
	}

	existing, err := q.ListRepeatable(ctx)
	if err != nil {
		return err
	}
	for _, job := range existing {
		if job.Name != name {
			continue
		}
		if job.Every == every {
			return nil
		}
		// Cadence changed: rewrite it, next fire stays put.
		return q.client.HSet(ctx, keyRepeatEvery, name, every.Milliseconds()).Err()
	}

	first := time.Now().Add(every).UnixMilli()
	pipe := q.client.TxPipeline()
	pipe.ZAddNX(ctx, keyRepeat, redis.Z{Score: float64(first), Member: name})
	pipe.HSet(ctx, keyRepeatEvery, name, every.Milliseconds())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: register repeatable %s: %w", name, err)
	}
	return nil
}

// ListRepeatable returns all registered repeatable jobs.
func (q *RedisQueue) ListRepeatable(ctx context.Context) ([]RepeatableJob, error) {
	members, err := q.client.ZRangeWithScores(ctx, keyRepeat, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: list repeatable: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	intervals, err := q.client.HGetAll(ctx, keyRepeatEvery).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: list repeatable intervals: %w", err)
	}

	jobs := make([]RepeatableJob, 0, len(members))
	for _, m := range members {
		name, ok := m.Member.(string)
		if !ok {
			continue
		}
		job := RepeatableJob{
			Name:       name,
			NextFireAt: time.UnixMilli(int64(m.Score)),
		}
		if ms, err := strconv.ParseInt(intervals[name], 10, 64); err == nil {
			job.Every = time.Duration(ms) * time.Millisecond
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Nudge pulls an existing registration's next fire forward to at. A job
// already due sooner is left alone, and an unknown name is a no-op.
func (q *RedisQueue) Nudge(ctx context.Context, name string, at time.Time) error {
	err := q.client.ZAddArgs(ctx, keyRepeat, redis.ZAddArgs{
		XX:      true,
		LT:      true,
		Members: []redis.Z{{Score: float64(at.UnixMilli()), Member: name}},
	}).Err()
	if err != nil {
		return fmt.Errorf("queue: nudge %s: %w", name, err)
	}
	return nil
}

// ClaimDue atomically claims jobs due at or before now and reschedules
// each one cadence ahead. Returns the claimed job names.
func (q *RedisQueue) ClaimDue(ctx context.Context, now time.Time, max int) ([]string, error) {
	res, err := claimScript.Run(ctx, q.client, []string{keyRepeat, keyRepeatEvery},
		now.UnixMilli(), max).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: claim due: %w", err)
	}

	raw, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("queue: claim due: unexpected reply %T", res)
	}
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			names = append(names, s)
		}
	}
	return names, nil
}
