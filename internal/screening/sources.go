package screening

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/waqiti/amlguard/internal/model"
)

// WatchlistKey is the redis key under which the watchlist loader maintains
// the consolidated reference list as a JSON array.
const WatchlistKey = "amlguard:watchlist"

// ReferenceSource supplies sanctions/PEP candidates for a search term. The
// reference store itself is an external collaborator; the pipeline only
// consumes this contract.
type ReferenceSource interface {
	Name() string
	LookupCandidates(ctx context.Context, name string) ([]model.ScreeningCandidate, error)
}

// StaticSource is an in-memory reference source. Used as the secondary
// fallback list in deployments and as the primary in tests.
type StaticSource struct {
	name string

	mu         sync.RWMutex
	candidates []model.ScreeningCandidate
}

// NewStaticSource creates a static source seeded with the given candidates.
func NewStaticSource(name string, candidates []model.ScreeningCandidate) *StaticSource {
	return &StaticSource{name: name, candidates: candidates}
}

func (s *StaticSource) Name() string { return s.name }

// LookupCandidates returns candidates sharing at least one name token with
// the search term. A coarse pre-filter: the matcher does the real scoring.
func (s *StaticSource) LookupCandidates(ctx context.Context, name string) ([]model.ScreeningCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := strings.Fields(Normalize(name))
	if len(tokens) == 0 {
		return nil, nil
	}

	var out []model.ScreeningCandidate
	for _, candidate := range s.candidates {
		if candidateMatchesTokens(&candidate, tokens) {
			out = append(out, candidate)
		}
	}
	return out, nil
}

// Replace swaps the candidate list, used when reference data refreshes.
func (s *StaticSource) Replace(candidates []model.ScreeningCandidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = candidates
}

// watchlistClient is the slice of redis.Client the redis source needs.
type watchlistClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisSource reads the consolidated reference list maintained out-of-band
// by the watchlist loader. The decoded list is cached for the refresh
// interval so the hot screening path does not fetch redis per event. A fetch
// or decode failure surfaces as an error, pushing the matcher down its
// failover chain.
type RedisSource struct {
	client  watchlistClient
	key     string
	refresh time.Duration

	mu        sync.Mutex
	cached    []model.ScreeningCandidate
	fetchedAt time.Time
}

// NewRedisSource creates a redis-backed reference source on the given key.
func NewRedisSource(client *redis.Client, key string, refresh time.Duration) *RedisSource {
	return &RedisSource{client: client, key: key, refresh: refresh}
}

func (s *RedisSource) Name() string { return "redis-watchlist" }

// LookupCandidates filters the cached list the same way StaticSource does.
func (s *RedisSource) LookupCandidates(ctx context.Context, name string) ([]model.ScreeningCandidate, error) {
	candidates, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	tokens := strings.Fields(Normalize(name))
	if len(tokens) == 0 {
		return nil, nil
	}

	var out []model.ScreeningCandidate
	for _, candidate := range candidates {
		if candidateMatchesTokens(&candidate, tokens) {
			out = append(out, candidate)
		}
	}
	return out, nil
}

func (s *RedisSource) load(ctx context.Context) ([]model.ScreeningCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && time.Since(s.fetchedAt) < s.refresh {
		return s.cached, nil
	}

	raw, err := s.client.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("watchlist key %s not loaded", s.key)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch watchlist: %w", err)
	}

	var candidates []model.ScreeningCandidate
	if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
		return nil, fmt.Errorf("decode watchlist: %w", err)
	}

	s.cached = candidates
	s.fetchedAt = time.Now()
	return candidates, nil
}

func candidateMatchesTokens(candidate *model.ScreeningCandidate, tokens []string) bool {
	names := append([]string{candidate.Name}, candidate.Aliases...)
	for _, name := range names {
		normalized := Normalize(name)
		for _, token := range tokens {
			if strings.Contains(normalized, token) {
				return true
			}
		}
	}
	return false
}
