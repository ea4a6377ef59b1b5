package collab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const filingKeyPrefix = "amlguard:filing:"

// RedisFilingQueue is an outbox-style filing collaborator: submissions are
// persisted in redis before acknowledgement, so a worker crash between
// decision and filing never loses the obligation.
type RedisFilingQueue struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewRedisFilingQueue creates a filing queue. Entries are retained for ttl
// after submission for status checks and audit.
func NewRedisFilingQueue(client *redis.Client, ttl time.Duration, logger *zap.SugaredLogger) *RedisFilingQueue {
	return &RedisFilingQueue{client: client, ttl: ttl, logger: logger}
}

// Submit persists the filing and returns its reference.
func (q *RedisFilingQueue) Submit(ctx context.Context, filing *Filing) (string, error) {
	reference := uuid.NewString()
	key := filingKeyPrefix + reference

	fields := map[string]interface{}{
		"fingerprint":  filing.Fingerprint,
		"actor_id":     filing.ActorID,
		"tier":         string(filing.Tier),
		"narrative":    filing.Narrative,
		"status":       string(FilingPending),
		"submitted_at": filing.SubmittedAt.UTC().Format(time.RFC3339),
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, q.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("persist filing %s: %w", reference, err)
	}

	q.logger.Infow("Regulatory filing submitted",
		"reference", reference, "actor_id", filing.ActorID, "tier", filing.Tier)
	return reference, nil
}

// CheckStatus returns the collaborator-reported status of a filing.
func (q *RedisFilingQueue) CheckStatus(ctx context.Context, reference string) (FilingStatus, error) {
	status, err := q.client.HGet(ctx, filingKeyPrefix+reference, "status").Result()
	if err == redis.Nil {
		return "", fmt.Errorf("filing %s not found", reference)
	}
	if err != nil {
		return "", fmt.Errorf("filing status %s: %w", reference, err)
	}
	return FilingStatus(status), nil
}

// MemoryFilingQueue is the in-memory filing collaborator used in tests and
// single-worker deployments.
type MemoryFilingQueue struct {
	mu      sync.RWMutex
	filings map[string]*Filing
	status  map[string]FilingStatus
}

// NewMemoryFilingQueue creates an empty in-memory filing queue.
func NewMemoryFilingQueue() *MemoryFilingQueue {
	return &MemoryFilingQueue{
		filings: make(map[string]*Filing),
		status:  make(map[string]FilingStatus),
	}
}

// Submit records the filing and returns a fresh reference.
func (q *MemoryFilingQueue) Submit(_ context.Context, filing *Filing) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	reference := uuid.NewString()
	dup := *filing
	q.filings[reference] = &dup
	q.status[reference] = FilingPending
	return reference, nil
}

// CheckStatus returns the recorded status.
func (q *MemoryFilingQueue) CheckStatus(_ context.Context, reference string) (FilingStatus, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	status, exists := q.status[reference]
	if !exists {
		return "", fmt.Errorf("filing %s not found", reference)
	}
	return status, nil
}

// Acknowledge marks a filing as accepted by the regulator. Test hook.
func (q *MemoryFilingQueue) Acknowledge(reference string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.status[reference]; exists {
		q.status[reference] = FilingAcknowledged
	}
}

// Submitted returns all recorded filings. Test hook.
func (q *MemoryFilingQueue) Submitted() []*Filing {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*Filing, 0, len(q.filings))
	for _, filing := range q.filings {
		dup := *filing
		out = append(out, &dup)
	}
	return out
}
