// Package idempotency deduplicates inbound events by fingerprint so that
// redeliveries from the at-least-once transport never produce duplicate
// business effects.
package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/waqiti/amlguard/internal/model"
)

// Store persists idempotency records with expiry. Implementations must be
// safe for concurrent use; the redis store is additionally shared across
// consumer instances.
type Store interface {
	// ShouldProcess reports whether the fingerprint is unseen within the TTL
	// window. A false return means the event was already processed.
	ShouldProcess(ctx context.Context, fingerprint string) (bool, error)

	// MarkProcessed records the fingerprint. Idempotent.
	MarkProcessed(ctx context.Context, fingerprint string) error
}

// RedisStore implements Store on a shared redis instance using
// SET-if-absent with expiry, making deduplication effective across all
// concurrent workers and process restarts.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewRedisStore creates a redis-backed idempotency store.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *zap.SugaredLogger) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

func (s *RedisStore) key(fingerprint string) string {
	return fmt.Sprintf("amlguard:idem:%s", fingerprint)
}

// ShouldProcess atomically claims the fingerprint. The SETNX claim and the
// lookup are one operation, so two workers racing on the same redelivery
// cannot both win.
func (s *RedisStore) ShouldProcess(ctx context.Context, fingerprint string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(fingerprint), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, &model.TransientError{Dependency: "idempotency-store", Err: err}
	}
	return ok, nil
}

// MarkProcessed refreshes the record TTL. The claim in ShouldProcess already
// wrote the record; this extends it to a full window measured from commit.
func (s *RedisStore) MarkProcessed(ctx context.Context, fingerprint string) error {
	if err := s.client.Set(ctx, s.key(fingerprint), time.Now().UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
		return &model.TransientError{Dependency: "idempotency-store", Err: err}
	}
	return nil
}

// Release drops a claimed fingerprint so a failed event can be retried.
func (s *RedisStore) Release(ctx context.Context, fingerprint string) error {
	if err := s.client.Del(ctx, s.key(fingerprint)).Err(); err != nil {
		return &model.TransientError{Dependency: "idempotency-store", Err: err}
	}
	return nil
}

// MemoryStore implements Store in process memory. Correct only for a
// single-worker deployment; production uses RedisStore. Expiry is enforced
// lazily on lookup and by a periodic background sweep.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]model.IdempotencyRecord
	ttl       time.Duration
	logger    *zap.SugaredLogger
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore creates an in-process store and starts its sweep loop.
func NewMemoryStore(ttl, sweepInterval time.Duration, logger *zap.SugaredLogger) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]model.IdempotencyRecord),
		ttl:     ttl,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go s.sweep(sweepInterval)
	return s
}

func (s *MemoryStore) ShouldProcess(ctx context.Context, fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[fingerprint]
	if exists && time.Since(rec.FirstSeenAt) < s.ttl {
		return false, nil
	}
	// Expired entries are replaced on the spot.
	s.records[fingerprint] = model.IdempotencyRecord{
		Fingerprint: fingerprint,
		FirstSeenAt: time.Now(),
	}
	return true, nil
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[fingerprint] = model.IdempotencyRecord{
		Fingerprint: fingerprint,
		FirstSeenAt: time.Now(),
	}
	return nil
}

// Release drops a claimed fingerprint so a failed event can be retried.
func (s *MemoryStore) Release(ctx context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, fingerprint)
	return nil
}

// sweep periodically evicts expired records to bound memory.
func (s *MemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			evicted := 0
			for fp, rec := range s.records {
				if time.Since(rec.FirstSeenAt) >= s.ttl {
					delete(s.records, fp)
					evicted++
				}
			}
			remaining := len(s.records)
			s.mu.Unlock()
			if evicted > 0 {
				s.logger.Debugw("Idempotency sweep completed", "evicted", evicted, "remaining", remaining)
			}
		}
	}
}

// Close stops the background sweep.
func (s *MemoryStore) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Releaser is implemented by stores that can drop a claimed fingerprint.
type Releaser interface {
	Release(ctx context.Context, fingerprint string) error
}
