package collab

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waqiti/amlguard/internal/model"
)

func TestMemoryFilingQueueLifecycle(t *testing.T) {
	queue := NewMemoryFilingQueue()
	ctx := context.Background()

	reference, err := queue.Submit(ctx, &Filing{
		Fingerprint: "fp-1",
		ActorID:     "actor-1",
		Tier:        model.TierHigh,
		Narrative:   "repeated sub-threshold transactions",
		SubmittedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, reference)

	status, err := queue.CheckStatus(ctx, reference)
	require.NoError(t, err)
	assert.Equal(t, FilingPending, status)

	queue.Acknowledge(reference)
	status, err = queue.CheckStatus(ctx, reference)
	require.NoError(t, err)
	assert.Equal(t, FilingAcknowledged, status)

	assert.Len(t, queue.Submitted(), 1)
}

func TestMemoryFilingQueueUnknownReference(t *testing.T) {
	queue := NewMemoryFilingQueue()
	_, err := queue.CheckStatus(context.Background(), "no-such-filing")
	assert.Error(t, err)
}

func TestMemoryAlertPublisherRecordsAndFails(t *testing.T) {
	publisher := NewMemoryAlertPublisher()
	ctx := context.Background()

	decision := &model.Decision{Fingerprint: "fp-1", ActorID: "actor-1", Tier: model.TierMedium}
	require.NoError(t, publisher.PublishDecision(ctx, decision))
	require.Len(t, publisher.Decisions(), 1)

	publisher.FailWith(&model.TransientError{Dependency: "kafka", Err: context.DeadlineExceeded})
	err := publisher.PublishDecision(ctx, decision)
	require.Error(t, err)
	assert.True(t, model.IsRetryable(err))
	assert.Len(t, publisher.Decisions(), 1, "failed publishes are not recorded")
}

func TestMemoryDeadLetterSinkRecordsReason(t *testing.T) {
	sink := NewMemoryDeadLetterSink()
	event := &model.InboundEvent{ID: "evt-1", Type: model.EventTypeTransaction, SourceTopic: "t"}

	require.NoError(t, sink.DeadLetter(context.Background(), event, "validation: amount missing"))
	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "evt-1", entries[0].Event.ID)
	assert.Equal(t, "validation: amount missing", entries[0].Reason)
}
