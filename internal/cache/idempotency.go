package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/velopay/gateway_api/internal/utils"
)

// IdempotencyRecord is the stored outcome of a keyed request. It lives in
// Redis under the record's TTL; expiry makes the key usable again.
type IdempotencyRecord struct {
	Fingerprint string          `json:"fingerprint"`
	ResourceID  string          `json:"resourceId"`
	Response    json.RawMessage `json:"response"`
	RecordedAt  time.Time       `json:"recordedAt"`
}

// Supplier produces the result recorded under an idempotency key. It runs at
// most once per live key.
type Supplier func(ctx context.Context) (resourceID string, response json.RawMessage, err error)

// IdempotencyCache deduplicates keyed payment creations per merchant.
// Concurrent requests with the same key collapse onto a single supplier
// execution: the in-flight call runs, everyone else blocks until it finishes
// and shares its result. Completed outcomes persist in Redis for the TTL.
type IdempotencyCache struct {
	redis *RedisClient
	ttl   time.Duration
	group singleflight.Group
}

// NewIdempotencyCache creates an IdempotencyCache with the given record TTL.
func NewIdempotencyCache(redis *RedisClient, ttl time.Duration) *IdempotencyCache {
	return &IdempotencyCache{
		redis: redis,
		ttl:   ttl,
	}
}

func (c *IdempotencyCache) recordKey(merchantID, key string) string {
	return fmt.Sprintf("idem:%s:%s", merchantID, key)
}

type checkResult struct {
	record   *IdempotencyRecord
	replayed bool
}

// CheckOrRecord enforces at-most-one-effective-execution for the given key.
// On a fresh key it runs the supplier and stores the outcome. On a key with a
// live record whose fingerprint matches, it returns the stored record without
// running the supplier. A fingerprint mismatch returns ErrIdempotencyConflict.
// Expired records are treated as absent.
//
// The returned bool is true when the result was replayed from a prior
// execution rather than produced by this call's supplier.
func (c *IdempotencyCache) CheckOrRecord(ctx context.Context, merchantID, key, fingerprint string, supplier Supplier) (*IdempotencyRecord, bool, error) {
	rk := c.recordKey(merchantID, key)

	v, err, _ := c.group.Do(rk, func() (interface{}, error) {
		if rec, err := c.lookup(ctx, rk); err != nil {
			return nil, err
		} else if rec != nil {
			return &checkResult{record: rec, replayed: true}, nil
		}

		resourceID, response, err := supplier(ctx)
		if err != nil {
			return nil, err
		}

		rec := &IdempotencyRecord{
			Fingerprint: fingerprint,
			ResourceID:  resourceID,
			Response:    response,
			RecordedAt:  time.Now().UTC(),
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal idempotency record: %w", err)
		}
		if err := c.redis.Set(ctx, rk, string(raw), c.ttl); err != nil {
			return nil, fmt.Errorf("failed to store idempotency record: %w", err)
		}
		return &checkResult{record: rec, replayed: false}, nil
	})
	if err != nil {
		return nil, false, err
	}

	res := v.(*checkResult)
	if res.record.Fingerprint != fingerprint {
		return nil, false, utils.ErrIdempotencyConflict
	}
	return res.record, res.replayed, nil
}

// lookup fetches a live record, treating a missing key as absent.
func (c *IdempotencyCache) lookup(ctx context.Context, rk string) (*IdempotencyRecord, error) {
	raw, err := c.redis.Get(ctx, rk)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	var rec IdempotencyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal idempotency record: %w", err)
	}
	return &rec, nil
}
