package screening

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWatchlistClient struct {
	value string
	err   error
	calls int
}

func (c *fakeWatchlistClient) Get(ctx context.Context, key string) *redis.StringCmd {
	c.calls++
	if c.err != nil {
		return redis.NewStringResult("", c.err)
	}
	return redis.NewStringResult(c.value, nil)
}

func watchlistJSON(t *testing.T) string {
	t.Helper()
	raw, err := json.Marshal(BuiltinWatchlist())
	require.NoError(t, err)
	return string(raw)
}

func TestRedisSourceFiltersByToken(t *testing.T) {
	client := &fakeWatchlistClient{value: watchlistJSON(t)}
	source := &RedisSource{client: client, key: WatchlistKey, refresh: time.Minute}

	candidates, err := source.LookupCandidates(context.Background(), "Vladimir Putin")
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	for _, candidate := range candidates {
		assert.Contains(t, Normalize(candidate.Name), "putin")
	}
}

func TestRedisSourceCachesBetweenLookups(t *testing.T) {
	client := &fakeWatchlistClient{value: watchlistJSON(t)}
	source := &RedisSource{client: client, key: WatchlistKey, refresh: time.Minute}
	ctx := context.Background()

	_, err := source.LookupCandidates(ctx, "Kim Jong Un")
	require.NoError(t, err)
	_, err = source.LookupCandidates(ctx, "Sergei Lavrov")
	require.NoError(t, err)

	assert.Equal(t, 1, client.calls, "second lookup within the refresh window must use the cache")
}

func TestRedisSourceMissingKeyErrors(t *testing.T) {
	source := &RedisSource{
		client:  &fakeWatchlistClient{err: redis.Nil},
		key:     WatchlistKey,
		refresh: time.Minute,
	}

	_, err := source.LookupCandidates(context.Background(), "Anyone")
	assert.Error(t, err)
}

func TestRedisSourceRejectsMalformedPayload(t *testing.T) {
	source := &RedisSource{
		client:  &fakeWatchlistClient{value: "not json"},
		key:     WatchlistKey,
		refresh: time.Minute,
	}

	_, err := source.LookupCandidates(context.Background(), "Anyone")
	assert.Error(t, err)
}

func TestMatcherFallsBackWhenRedisSourceFails(t *testing.T) {
	primary := &RedisSource{
		client:  &fakeWatchlistClient{err: errors.New("connection refused")},
		key:     WatchlistKey,
		refresh: time.Minute,
	}
	fallback := NewStaticSource("builtin-watchlist", BuiltinWatchlist())

	matcher := newTestMatcher(primary, fallback)

	results, err := matcher.Screen(context.Background(), "actor-1", "Viktor Bout")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.False(t, results[0].ManualReview, "the fallback source answered, so no placeholder")
	assert.GreaterOrEqual(t, results[0].Score, 90.0)
}
