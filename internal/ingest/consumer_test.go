package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/waqiti/amlguard/internal/model"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func newTestConsumer(t *testing.T, h *testHarness, reader *fakeReader) *Consumer {
	t.Helper()
	c := newConsumer(reader, testIngestConfig(), h.gateway, h.sink, zap.NewNop().Sugar())
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestRunProcessesAndCommitsEvents(t *testing.T) {
	h := newHarness(t, cleanScreener{})
	reader := &fakeReader{messages: []kafka.Message{
		{
			Topic: "financial-activity-events",
			Key:   []byte("customer-1"),
			Value: []byte(`{
				"event_id": "evt-run-1",
				"event_type": "TRANSACTION",
				"source_topic": "financial-activity-events",
				"payload": {"actor_id": "customer-1", "amount": 120.5, "currency": "USD"}
			}`),
			Time: time.Now(),
		},
	}}

	require.NoError(t, newTestConsumer(t, h, reader).Run(context.Background()))

	assert.Len(t, h.publisher.Decisions(), 1)
	assert.Len(t, reader.committed, 1)
	assert.Empty(t, h.sink.Entries())
}

func TestRunDeadLettersUndecodableMessage(t *testing.T) {
	h := newHarness(t, cleanScreener{})
	reader := &fakeReader{messages: []kafka.Message{
		{Topic: "financial-activity-events", Key: []byte("k"), Value: []byte("not json"), Time: time.Now()},
	}}

	require.NoError(t, newTestConsumer(t, h, reader).Run(context.Background()))

	entries := h.sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "not json", entries[0].Event.Payload["raw"])
	assert.Len(t, reader.committed, 1, "undecodable messages are committed once parked")
	assert.Empty(t, h.publisher.Decisions())
}

func TestProcessRetriesWithBackoffThenDeadLetters(t *testing.T) {
	h := newHarness(t, cleanScreener{})
	h.publisher.FailWith(&model.TransientError{Dependency: "kafka", Err: errors.New("broker down")})

	var backoffs []time.Duration
	c := newConsumer(&fakeReader{}, testIngestConfig(), h.gateway, h.sink, zap.NewNop().Sugar())
	c.sleep = func(_ context.Context, d time.Duration) error {
		backoffs = append(backoffs, d)
		return nil
	}

	settled := c.Process(context.Background(), txEvent("evt-stuck", "customer-2", 100))

	assert.True(t, settled, "exhausted events settle by dead-lettering")
	require.Len(t, h.sink.Entries(), 1)
	assert.Equal(t, "retries exhausted", h.sink.Entries()[0].Reason)

	// MaxAttempts is 3: two sleeps between attempts, doubling each time.
	require.Len(t, backoffs, 2)
	assert.Equal(t, time.Millisecond, backoffs[0])
	assert.Equal(t, 2*time.Millisecond, backoffs[1])
}

func TestProcessRecoversAfterTransientFailure(t *testing.T) {
	h := newHarness(t, cleanScreener{})
	h.publisher.FailWith(&model.TransientError{Dependency: "kafka", Err: errors.New("broker down")})

	c := newConsumer(&fakeReader{}, testIngestConfig(), h.gateway, h.sink, zap.NewNop().Sugar())
	c.sleep = func(context.Context, time.Duration) error {
		// Broker comes back before the first retry.
		h.publisher.FailWith(nil)
		return nil
	}

	assert.True(t, c.Process(context.Background(), txEvent("evt-flaky", "customer-2", 100)))
	assert.Len(t, h.publisher.Decisions(), 1)
	assert.Empty(t, h.sink.Entries())
}

func TestProcessCancelledDuringBackoffDoesNotSettle(t *testing.T) {
	h := newHarness(t, cleanScreener{})
	h.publisher.FailWith(&model.TransientError{Dependency: "kafka", Err: errors.New("broker down")})

	c := newConsumer(&fakeReader{}, testIngestConfig(), h.gateway, h.sink, zap.NewNop().Sugar())
	c.sleep = func(context.Context, time.Duration) error { return context.Canceled }

	assert.False(t, c.Process(context.Background(), txEvent("evt-cancel", "customer-2", 100)))
	assert.Empty(t, h.sink.Entries())
}
