// Package collab holds the downstream collaborator ports of the pipeline:
// alert publication, dead-lettering and regulatory filing. Kafka-backed
// implementations live here; tests swap in the in-memory fakes.
package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/waqiti/amlguard/internal/model"
)

// messageWriter is the slice of kafka.Writer the publishers need.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AlertPublisher emits finished decisions for downstream consumers (case
// UIs, notification fan-out, audit).
type AlertPublisher interface {
	PublishDecision(ctx context.Context, decision *model.Decision) error
}

// DeadLetterSink receives events the gateway permanently gave up on.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, event *model.InboundEvent, reason string) error
}

// RegulatoryFiling submits reporting obligations (CTR, SAR) to the filing
// collaborator and tracks their acknowledgement.
type RegulatoryFiling interface {
	Submit(ctx context.Context, filing *Filing) (string, error)
	CheckStatus(ctx context.Context, reference string) (FilingStatus, error)
}

// FilingStatus is the collaborator-reported state of a submitted filing.
type FilingStatus string

const (
	FilingPending      FilingStatus = "PENDING"
	FilingAcknowledged FilingStatus = "ACKNOWLEDGED"
	FilingRejected     FilingStatus = "REJECTED"
)

// Filing is one regulatory report derived from a decision.
type Filing struct {
	Fingerprint string         `json:"fingerprint"`
	ActorID     string         `json:"actor_id"`
	Tier        model.RiskTier `json:"tier"`
	Narrative   string         `json:"narrative"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// deadLetterEnvelope is the payload written to the dead-letter topic. It
// wraps the original event so it can be replayed after the defect is fixed.
type deadLetterEnvelope struct {
	Reason       string              `json:"reason"`
	DeadLetterAt time.Time           `json:"dead_letter_at"`
	Event        *model.InboundEvent `json:"event"`
}

// KafkaAlertPublisher publishes decisions keyed by actor so all alerts for
// one actor land on the same partition.
type KafkaAlertPublisher struct {
	writer messageWriter
	logger *zap.SugaredLogger
}

// NewKafkaAlertPublisher creates a publisher on the alert topic.
func NewKafkaAlertPublisher(brokers []string, topic string, writeTimeout time.Duration, logger *zap.SugaredLogger) *KafkaAlertPublisher {
	return &KafkaAlertPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: writeTimeout,
			RequiredAcks: kafka.RequireAll,
		},
		logger: logger,
	}
}

// PublishDecision writes the decision to the alert topic.
func (p *KafkaAlertPublisher) PublishDecision(ctx context.Context, decision *model.Decision) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(decision.ActorID),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Errorw("Failed to publish decision",
			"actor_id", decision.ActorID, "fingerprint", decision.Fingerprint, "error", err)
		return &model.TransientError{Dependency: "kafka", Err: err}
	}

	p.logger.Debugw("Decision published",
		"actor_id", decision.ActorID, "tier", decision.Tier)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaAlertPublisher) Close() error { return p.writer.Close() }

// KafkaDeadLetterSink writes exhausted events to the dead-letter topic with
// the failure reason attached.
type KafkaDeadLetterSink struct {
	writer messageWriter
	logger *zap.SugaredLogger
}

// NewKafkaDeadLetterSink creates a sink on the dead-letter topic.
func NewKafkaDeadLetterSink(brokers []string, topic string, writeTimeout time.Duration, logger *zap.SugaredLogger) *KafkaDeadLetterSink {
	return &KafkaDeadLetterSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: writeTimeout,
			RequiredAcks: kafka.RequireAll,
		},
		logger: logger,
	}
}

// DeadLetter wraps the event with the reason and writes it out. The envelope
// keeps the full original event so operators can replay it.
func (s *KafkaDeadLetterSink) DeadLetter(ctx context.Context, event *model.InboundEvent, reason string) error {
	envelope := deadLetterEnvelope{
		Reason:       reason,
		DeadLetterAt: time.Now(),
		Event:        event,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal dead-letter envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.ID),
		Value: payload,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Errorw("Failed to write dead letter",
			"event_id", event.ID, "reason", reason, "error", err)
		return &model.TransientError{Dependency: "kafka", Err: err}
	}

	s.logger.Warnw("Event dead-lettered",
		"event_id", event.ID, "source_topic", event.SourceTopic, "reason", reason)
	return nil
}

// Close flushes and closes the underlying writer.
func (s *KafkaDeadLetterSink) Close() error { return s.writer.Close() }
