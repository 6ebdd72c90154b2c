package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/velopay/gateway_api/internal/cache"
	"github.com/velopay/gateway_api/internal/utils"
)

// Queue is a durable at-least-once work queue on Redis. Ready jobs live in a
// list; a claim moves the job into the claiming worker's processing list, so
// ownership is exclusive until the worker acks or nacks. Delayed jobs wait in
// a sorted set scored by their due time until PromoteDue moves them across.
type Queue struct {
	redis       *cache.RedisClient
	name        string
	maxAttempts int
}

// ClaimedJob pairs a decoded job with the raw payload the worker owns. The
// raw string is the job's identity inside the processing list.
type ClaimedJob struct {
	Job      *Job
	raw      string
	workerID string
}

// Status holds aggregate queue counts for operational visibility. No job
// payloads are exposed.
type Status struct {
	Queued       int64 `json:"queued"`
	InFlight     int64 `json:"inFlight"`
	Scheduled    int64 `json:"scheduled"`
	DeadLettered int64 `json:"deadLettered"`
}

// New creates a Queue with the given name prefix and per-job attempt budget.
func New(redis *cache.RedisClient, name string, maxAttempts int) *Queue {
	return &Queue{
		redis:       redis,
		name:        name,
		maxAttempts: maxAttempts,
	}
}

func (q *Queue) readyKey() string     { return q.name + ":ready" }
func (q *Queue) scheduledKey() string { return q.name + ":scheduled" }
func (q *Queue) deadKey() string      { return q.name + ":dead" }
func (q *Queue) processingKey(workerID string) string {
	return q.name + ":processing:" + workerID
}

// Enqueue pushes a job onto the ready list.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	raw, err := job.encode()
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.redis.Raw().LPush(ctx, q.readyKey(), raw).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// EnqueueIn schedules a job to become ready after the given delay.
func (q *Queue) EnqueueIn(ctx context.Context, job *Job, delay time.Duration) error {
	raw, err := job.encode()
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.redis.Raw().ZAdd(ctx, q.scheduledKey(), redis.Z{Score: due, Member: raw}).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Claim atomically moves the oldest ready job into the worker's processing
// list and returns it. It returns (nil, nil) when no work is available;
// callers poll.
func (q *Queue) Claim(ctx context.Context, workerID string) (*ClaimedJob, error) {
	raw, err := q.redis.Raw().LMove(ctx, q.readyKey(), q.processingKey(workerID), "RIGHT", "LEFT").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	job, err := decodeJob(raw)
	if err != nil {
		// Drop the malformed payload so it cannot wedge the worker.
		_ = q.redis.Raw().LRem(ctx, q.processingKey(workerID), 1, raw).Err()
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &ClaimedJob{Job: job, raw: raw, workerID: workerID}, nil
}

// Ack removes a completed job from the worker's processing list.
func (q *Queue) Ack(ctx context.Context, claimed *ClaimedJob) error {
	if err := q.redis.Raw().LRem(ctx, q.processingKey(claimed.workerID), 1, claimed.raw).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Nack returns a failed job to the queue with an incremented attempt count,
// or dead-letters it once the attempt budget is spent.
func (q *Queue) Nack(ctx context.Context, claimed *ClaimedJob) error {
	if err := q.redis.Raw().LRem(ctx, q.processingKey(claimed.workerID), 1, claimed.raw).Err(); err != nil {
		return unavailable(err)
	}

	job := claimed.Job
	job.Attempts++
	raw, err := job.encode()
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	dest := q.readyKey()
	if job.Attempts >= q.maxAttempts {
		dest = q.deadKey()
	}
	if err := q.redis.Raw().LPush(ctx, dest, raw).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// PromoteDue moves scheduled jobs whose due time has passed onto the ready
// list. Returns the number of jobs promoted.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	members, err := q.redis.Raw().ZRangeByScore(ctx, q.scheduledKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return 0, unavailable(err)
	}

	promoted := 0
	for _, raw := range members {
		// ZRem first: only the mover that wins the removal may push, so a
		// concurrent promoter cannot duplicate the job.
		removed, err := q.redis.Raw().ZRem(ctx, q.scheduledKey(), raw).Result()
		if err != nil {
			return promoted, unavailable(err)
		}
		if removed == 0 {
			continue
		}
		if err := q.redis.Raw().LPush(ctx, q.readyKey(), raw).Err(); err != nil {
			return promoted, unavailable(err)
		}
		promoted++
	}
	return promoted, nil
}

// Status returns aggregate queue counts.
func (q *Queue) Status(ctx context.Context) (*Status, error) {
	r := q.redis.Raw()

	queued, err := r.LLen(ctx, q.readyKey()).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	scheduled, err := r.ZCard(ctx, q.scheduledKey()).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	dead, err := r.LLen(ctx, q.deadKey()).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	// Processing lists are per-worker; walk them with SCAN so status reads
	// never block the server the way KEYS would.
	var inFlight int64
	var cursor uint64
	for {
		keys, next, err := r.Scan(ctx, cursor, q.name+":processing:*", 100).Result()
		if err != nil {
			return nil, unavailable(err)
		}
		for _, k := range keys {
			n, err := r.LLen(ctx, k).Result()
			if err != nil {
				return nil, unavailable(err)
			}
			inFlight += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return &Status{
		Queued:       queued,
		InFlight:     inFlight,
		Scheduled:    scheduled,
		DeadLettered: dead,
	}, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", utils.ErrQueueUnavailable, err)
}
