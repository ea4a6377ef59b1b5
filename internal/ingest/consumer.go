package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/waqiti/amlguard/internal/collab"
	"github.com/waqiti/amlguard/internal/config"
	"github.com/waqiti/amlguard/internal/metrics"
	"github.com/waqiti/amlguard/internal/model"
)

// messageReader is the slice of kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads inbound events from the event topic and drives them through
// the gateway. Messages are keyed by actor upstream, so one partition sees
// all events of an actor in order.
type Consumer struct {
	reader      messageReader
	gateway     *Gateway
	deadLetters collab.DeadLetterSink
	cfg         config.IngestConfig
	logger      *zap.SugaredLogger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewConsumer creates a consumer on the configured event topic.
func NewConsumer(kafkaCfg config.KafkaConfig, ingestCfg config.IngestConfig, gateway *Gateway, deadLetters collab.DeadLetterSink, logger *zap.SugaredLogger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        kafkaCfg.Brokers,
		Topic:          kafkaCfg.EventTopic,
		GroupID:        kafkaCfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // explicit commits only, after the event settles
	})
	return newConsumer(reader, ingestCfg, gateway, deadLetters, logger)
}

func newConsumer(reader messageReader, cfg config.IngestConfig, gateway *Gateway, deadLetters collab.DeadLetterSink, logger *zap.SugaredLogger) *Consumer {
	return &Consumer{
		reader:      reader,
		gateway:     gateway,
		deadLetters: deadLetters,
		cfg:         cfg,
		logger:      logger,
		sleep:       sleepCtx,
	}
}

// Run consumes until the context is cancelled. Each message is decoded,
// processed with bounded retries, and committed once settled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Infow("Event consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				c.logger.Infow("Event consumer stopping")
				return nil
			}
			c.logger.Errorw("Fetch failed", "error", err)
			if err := c.sleep(ctx, c.cfg.RetryBackoffMin); err != nil {
				return nil
			}
			continue
		}

		event, err := decodeEvent(msg)
		if err != nil {
			// Undecodable bytes can never succeed; park them raw.
			c.logger.Warnw("Undecodable message, dead-lettering",
				"partition", msg.Partition, "offset", msg.Offset, "error", err)
			raw := &model.InboundEvent{
				ID:          string(msg.Key),
				SourceTopic: msg.Topic,
				Payload:     map[string]interface{}{"raw": string(msg.Value)},
				ReceivedAt:  msg.Time,
			}
			if dlErr := c.deadLetters.DeadLetter(ctx, raw, err.Error()); dlErr != nil {
				c.logger.Errorw("Dead-letter write failed", "error", dlErr)
				continue // refetch without committing
			}
			metrics.EventsProcessed.WithLabelValues("dead_letter").Inc()
			c.commit(ctx, msg)
			continue
		}

		if c.Process(ctx, event) {
			c.commit(ctx, msg)
		}
	}
}

// Process drives one event through the gateway with bounded exponential
// backoff. It returns true when the event is settled (acked or parked) and
// the offset may be committed.
func (c *Consumer) Process(ctx context.Context, event *model.InboundEvent) bool {
	backoff := c.cfg.RetryBackoffMin
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		switch c.gateway.Handle(ctx, event) {
		case Ack, DeadLetter:
			return true
		case Retry:
			if attempt == c.cfg.MaxAttempts {
				break
			}
			c.logger.Debugw("Retrying event",
				"event_id", event.ID, "attempt", attempt, "backoff", backoff)
			if err := c.sleep(ctx, backoff); err != nil {
				return false
			}
			backoff *= 2
			if backoff > c.cfg.RetryBackoffMax {
				backoff = c.cfg.RetryBackoffMax
			}
		}
	}

	// Retries exhausted: park the event so the stream is not blocked.
	c.logger.Errorw("Retries exhausted, dead-lettering event",
		"event_id", event.ID, "attempts", c.cfg.MaxAttempts)
	if err := c.deadLetters.DeadLetter(ctx, event, "retries exhausted"); err != nil {
		c.logger.Errorw("Dead-letter write failed", "event_id", event.ID, "error", err)
		return false
	}
	metrics.EventsProcessed.WithLabelValues("dead_letter").Inc()
	return true
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Errorw("Commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
	}
}

// Close shuts down the underlying reader.
func (c *Consumer) Close() error { return c.reader.Close() }

func decodeEvent(msg kafka.Message) (*model.InboundEvent, error) {
	var event model.InboundEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, err
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = msg.Time
	}
	if event.SourceTopic == "" {
		event.SourceTopic = msg.Topic
	}
	return &event, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
