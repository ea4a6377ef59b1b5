package velocity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/waqiti/amlguard/internal/model"
)

// WindowTotals holds the running count and amount for one actor window,
// after the current transaction has been recorded.
type WindowTotals struct {
	Count  int64
	Amount decimal.Decimal
}

// CounterStore accumulates per-actor transaction totals over expiring
// windows. Production deployments require an externally shared store so
// counters are visible to all workers and survive restarts.
type CounterStore interface {
	// Record atomically adds the transaction to the window's counters and
	// returns the updated totals.
	Record(ctx context.Context, actorID string, window time.Duration, amount decimal.Decimal) (WindowTotals, error)

	// RecordStructuring increments and returns the actor's same-day count of
	// transactions inside the structuring band.
	RecordStructuring(ctx context.Context, actorID string, day time.Time) (int64, error)
}

// RedisCounterStore implements CounterStore on shared redis using
// INCR/INCRBYFLOAT with expiry set when a window bucket is created.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore creates a redis-backed counter store.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func (s *RedisCounterStore) countKey(actorID string, window time.Duration) string {
	return fmt.Sprintf("amlguard:vel:%s:%s:count", actorID, window)
}

func (s *RedisCounterStore) amountKey(actorID string, window time.Duration) string {
	return fmt.Sprintf("amlguard:vel:%s:%s:amount", actorID, window)
}

func (s *RedisCounterStore) structKey(actorID string, day time.Time) string {
	return fmt.Sprintf("amlguard:struct:%s:%s", actorID, day.Format("2006-01-02"))
}

func (s *RedisCounterStore) Record(ctx context.Context, actorID string, window time.Duration, amount decimal.Decimal) (WindowTotals, error) {
	amt, _ := amount.Float64()

	pipe := s.client.TxPipeline()
	countCmd := pipe.Incr(ctx, s.countKey(actorID, window))
	amountCmd := pipe.IncrByFloat(ctx, s.amountKey(actorID, window), amt)
	// NX keeps the original window start; repeated expires would turn the
	// window into a rolling one that never closes.
	pipe.ExpireNX(ctx, s.countKey(actorID, window), window)
	pipe.ExpireNX(ctx, s.amountKey(actorID, window), window)
	if _, err := pipe.Exec(ctx); err != nil {
		return WindowTotals{}, &model.TransientError{Dependency: "velocity-store", Err: err}
	}

	return WindowTotals{
		Count:  countCmd.Val(),
		Amount: decimal.NewFromFloat(amountCmd.Val()),
	}, nil
}

func (s *RedisCounterStore) RecordStructuring(ctx context.Context, actorID string, day time.Time) (int64, error) {
	key := s.structKey(actorID, day)
	pipe := s.client.TxPipeline()
	countCmd := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, &model.TransientError{Dependency: "velocity-store", Err: err}
	}
	return countCmd.Val(), nil
}

// MemoryCounterStore implements CounterStore in process memory. Suitable for
// tests and single-worker deployments only.
type MemoryCounterStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	structs map[string]int64
}

type memoryBucket struct {
	count     int64
	amount    decimal.Decimal
	expiresAt time.Time
}

// NewMemoryCounterStore creates an in-process counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		buckets: make(map[string]*memoryBucket),
		structs: make(map[string]int64),
	}
}

func (s *MemoryCounterStore) Record(ctx context.Context, actorID string, window time.Duration, amount decimal.Decimal) (WindowTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s|%s", actorID, window)
	bucket, exists := s.buckets[key]
	if !exists || time.Now().After(bucket.expiresAt) {
		bucket = &memoryBucket{amount: decimal.Zero, expiresAt: time.Now().Add(window)}
		s.buckets[key] = bucket
	}
	bucket.count++
	bucket.amount = bucket.amount.Add(amount)

	return WindowTotals{Count: bucket.count, Amount: bucket.amount}, nil
}

func (s *MemoryCounterStore) RecordStructuring(ctx context.Context, actorID string, day time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s|%s", actorID, day.Format("2006-01-02"))
	s.structs[key]++
	return s.structs[key], nil
}
