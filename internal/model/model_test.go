package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintStableAcrossRedeliveries(t *testing.T) {
	first := &InboundEvent{
		ID:          "evt-123",
		Type:        EventTypeTransaction,
		SourceTopic: "financial-activity-events",
		Payload:     map[string]interface{}{"amount": 100.0},
		ReceivedAt:  time.Now(),
	}
	// Redelivery: same identity fields, different receive time and payload
	// pointer.
	second := &InboundEvent{
		ID:          "evt-123",
		Type:        EventTypeTransaction,
		SourceTopic: "financial-activity-events",
		Payload:     map[string]interface{}{"amount": 100.0},
		ReceivedAt:  time.Now().Add(time.Minute),
	}

	assert.Equal(t, first.Fingerprint(), second.Fingerprint())
	assert.Len(t, first.Fingerprint(), 64)
}

func TestFingerprintDistinguishesEvents(t *testing.T) {
	base := InboundEvent{ID: "evt-1", Type: EventTypeTransaction, SourceTopic: "topic-a"}

	otherID := base
	otherID.ID = "evt-2"
	otherTopic := base
	otherTopic.SourceTopic = "topic-b"
	otherType := base
	otherType.Type = EventTypeScreeningResult

	assert.NotEqual(t, base.Fingerprint(), otherID.Fingerprint())
	assert.NotEqual(t, base.Fingerprint(), otherTopic.Fingerprint())
	assert.NotEqual(t, base.Fingerprint(), otherType.Fingerprint())
}

func TestRiskTierOrdering(t *testing.T) {
	assert.True(t, TierLow.Rank() < TierMedium.Rank())
	assert.True(t, TierMedium.Rank() < TierHigh.Rank())
	assert.True(t, TierHigh.Rank() < TierCritical.Rank())

	assert.Equal(t, TierCritical, TierHigh.Max(TierCritical))
	assert.Equal(t, TierCritical, TierCritical.Max(TierLow))
	assert.Equal(t, TierMedium, TierMedium.Max(TierLow))
}

func TestCaseStatusTransitionsAreMonotonic(t *testing.T) {
	assert.True(t, CaseOpen.CanTransitionTo(CaseUnderReview))
	assert.True(t, CaseOpen.CanTransitionTo(CaseClosed))
	assert.True(t, CaseUnderReview.CanTransitionTo(CaseEscalated))
	assert.True(t, CaseUnderReview.CanTransitionTo(CaseApproved))

	// No regressions.
	assert.False(t, CaseUnderReview.CanTransitionTo(CaseOpen))
	assert.False(t, CaseOpen.CanTransitionTo(CaseOpen))

	// Terminal statuses never transition.
	for _, terminal := range []CaseStatus{CaseApproved, CaseEscalated, CaseClosed} {
		assert.True(t, terminal.Terminal())
		assert.False(t, terminal.CanTransitionTo(CaseOpen))
		assert.False(t, terminal.CanTransitionTo(CaseUnderReview))
		assert.False(t, terminal.CanTransitionTo(CaseClosed))
	}
}

func TestErrorClassification(t *testing.T) {
	transient := &TransientError{Dependency: "redis", Err: errors.New("connection refused")}
	validation := &ValidationError{Field: "amount", Reason: "negative"}

	assert.True(t, IsRetryable(transient))
	assert.False(t, IsRetryable(validation))
	assert.True(t, IsValidation(validation))
	assert.False(t, IsValidation(transient))

	wrapped := &ScreeningProviderError{Source: "ofac", Err: transient}
	assert.True(t, IsRetryable(wrapped))

	require.ErrorIs(t, wrapped, transient.Err, "unwrap chain should reach the root cause")
}

func TestDecisionHasTrigger(t *testing.T) {
	decision := &Decision{TriggeredRules: []TriggerType{TriggerStructuring, TriggerCTRRequired}}
	assert.True(t, decision.HasTrigger(TriggerStructuring))
	assert.False(t, decision.HasTrigger(TriggerSmurfing))
}
