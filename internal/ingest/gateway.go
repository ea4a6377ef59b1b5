// Package ingest receives inbound events, guards them with idempotency and
// circuit breaking, drives the evaluators, and settles every event as
// acknowledged, retried or dead-lettered.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/waqiti/amlguard/internal/collab"
	"github.com/waqiti/amlguard/internal/config"
	"github.com/waqiti/amlguard/internal/escalation"
	"github.com/waqiti/amlguard/internal/idempotency"
	"github.com/waqiti/amlguard/internal/metrics"
	"github.com/waqiti/amlguard/internal/model"
	"github.com/waqiti/amlguard/internal/pattern"
	"github.com/waqiti/amlguard/internal/scoring"
	"github.com/waqiti/amlguard/internal/screening"
	"github.com/waqiti/amlguard/internal/velocity"
)

// Outcome is the terminal disposition of one handle call.
type Outcome int

const (
	// Ack: the event is settled; the offset may be committed.
	Ack Outcome = iota
	// Retry: a transient failure; the event should be redelivered.
	Retry
	// DeadLetter: the event is permanently unprocessable and was parked.
	DeadLetter
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	case DeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// Screener is the slice of the fuzzy matcher the gateway needs.
type Screener interface {
	Screen(ctx context.Context, actorID, name string) ([]model.MatchResult, error)
}

// Gateway is the ingestion pipeline for one worker. Events for the same
// actor are partitioned to the same worker upstream, so per-actor ordering
// holds without locking here.
type Gateway struct {
	idem        idempotency.Store
	velocity    *velocity.Evaluator
	pattern     *pattern.Analyzer
	screener    Screener
	scorer      *scoring.Scorer
	cases       *escalation.CaseManager
	publisher   collab.AlertPublisher
	deadLetters collab.DeadLetterSink
	filings     collab.RegulatoryFiling

	screenBreaker  *CircuitBreaker
	publishBreaker *CircuitBreaker

	acceptThreshold float64
	cfg             config.IngestConfig
	logger          *zap.SugaredLogger
}

// GatewayDeps bundles the collaborators of a Gateway.
type GatewayDeps struct {
	Idempotency idempotency.Store
	Velocity    *velocity.Evaluator
	Pattern     *pattern.Analyzer
	Screener    Screener
	Scorer      *scoring.Scorer
	Cases       *escalation.CaseManager
	Publisher   collab.AlertPublisher
	DeadLetters collab.DeadLetterSink
	Filings     collab.RegulatoryFiling
}

// NewGateway wires an ingestion gateway.
func NewGateway(deps GatewayDeps, cfg config.IngestConfig, acceptThreshold float64, logger *zap.SugaredLogger) *Gateway {
	return &Gateway{
		idem:            deps.Idempotency,
		velocity:        deps.Velocity,
		pattern:         deps.Pattern,
		screener:        deps.Screener,
		scorer:          deps.Scorer,
		cases:           deps.Cases,
		publisher:       deps.Publisher,
		deadLetters:     deps.DeadLetters,
		filings:         deps.Filings,
		screenBreaker:   NewCircuitBreaker("screening", cfg, logger),
		publishBreaker:  NewCircuitBreaker("alert_publisher", cfg, logger),
		acceptThreshold: acceptThreshold,
		cfg:             cfg,
		logger:          logger,
	}
}

// Handle runs one event through the full pipeline. Exactly one of Ack, Retry
// or DeadLetter is returned for every call; duplicates ack without side
// effects.
func (g *Gateway) Handle(ctx context.Context, event *model.InboundEvent) Outcome {
	started := time.Now()
	outcome := g.handle(ctx, event)
	metrics.PipelineLatency.Observe(time.Since(started).Seconds())
	metrics.EventsProcessed.WithLabelValues(outcome.String()).Inc()
	return outcome
}

func (g *Gateway) handle(ctx context.Context, event *model.InboundEvent) Outcome {
	if err := validate(event); err != nil {
		g.logger.Warnw("Rejecting malformed event", "event_id", event.ID, "error", err)
		if dlErr := g.deadLetters.DeadLetter(ctx, event, err.Error()); dlErr != nil {
			// Could not park it either; redeliver rather than drop.
			return Retry
		}
		return DeadLetter
	}

	fingerprint := event.Fingerprint()
	fresh, err := g.idem.ShouldProcess(ctx, fingerprint)
	if err != nil {
		// Cannot prove the event was not already processed, so do not
		// process it now. Redelivery will retry the claim.
		g.logger.Errorw("Idempotency claim failed", "fingerprint", fingerprint, "error", err)
		return Retry
	}
	if !fresh {
		g.logger.Debugw("Duplicate event skipped", "fingerprint", fingerprint, "event_id", event.ID)
		metrics.EventsProcessed.WithLabelValues("duplicate").Inc()
		return Ack
	}

	decision, err := g.assess(ctx, event, fingerprint)
	if err != nil {
		g.releaseClaim(ctx, fingerprint)
		if model.IsValidation(err) {
			if dlErr := g.deadLetters.DeadLetter(ctx, event, err.Error()); dlErr != nil {
				return Retry
			}
			return DeadLetter
		}
		g.logger.Warnw("Assessment failed, retrying", "event_id", event.ID, "error", err)
		return Retry
	}

	if outcome := g.settle(ctx, event, decision); outcome != Ack {
		g.releaseClaim(ctx, fingerprint)
		return outcome
	}

	if err := g.idem.MarkProcessed(ctx, fingerprint); err != nil {
		// The decision is already published; a refreshed TTL is best effort.
		g.logger.Warnw("Failed to refresh idempotency record", "fingerprint", fingerprint, "error", err)
	}
	return Ack
}

// assess runs the evaluators appropriate to the event type and produces the
// scored, decided outcome.
func (g *Gateway) assess(ctx context.Context, event *model.InboundEvent, fingerprint string) (*model.Decision, error) {
	var (
		actorID string
		signals scoring.Signals
	)

	switch event.Type {
	case model.EventTypeTransaction:
		tx, err := parseTransaction(event)
		if err != nil {
			return nil, err
		}
		actorID = tx.ActorID

		velocityResult, err := g.velocity.Evaluate(ctx, tx)
		if err != nil {
			return nil, err
		}
		signals.Velocity = velocityResult
		signals.Anomalies = g.pattern.Analyze(ctx, tx)
		signals.Matches = g.screen(ctx, tx.ActorID, actorName(event))

	case model.EventTypeScreeningResult:
		result, err := parseScreeningResult(event)
		if err != nil {
			return nil, err
		}
		actorID = result.actorID
		signals.Matches = result.matches

	default:
		return nil, &model.ValidationError{Field: "event_type", Reason: fmt.Sprintf("unknown type %q", event.Type)}
	}

	assessment := g.scorer.Score(ctx, actorID, &signals)
	for _, trigger := range assessment.Triggers {
		metrics.TriggersFired.WithLabelValues(string(trigger)).Inc()
	}
	metrics.DecisionsByTier.WithLabelValues(string(assessment.Tier)).Inc()

	return &model.Decision{
		Fingerprint:    fingerprint,
		ActorID:        actorID,
		Score:          assessment.Score,
		Tier:           assessment.Tier,
		TriggeredRules: assessment.Triggers,
		Actions:        escalation.Decide(assessment.Tier, assessment.Triggers),
		DecidedAt:      time.Now(),
	}, nil
}

// screen runs identity screening behind its circuit breaker. An open breaker
// short-circuits to the manual-review placeholder immediately: screening
// unavailability never produces a clean result and never stalls the pipeline.
func (g *Gateway) screen(ctx context.Context, actorID, name string) []model.MatchResult {
	if name == "" {
		return nil
	}
	if !g.screenBreaker.Allow() {
		g.logger.Warnw("Screening breaker open, falling back to manual review", "actor_id", actorID)
		return []model.MatchResult{screening.ManualReviewPlaceholder(name, g.acceptThreshold)}
	}

	started := time.Now()
	matches, err := g.screener.Screen(ctx, actorID, name)
	metrics.ScreeningLatency.WithLabelValues("matcher").Observe(time.Since(started).Seconds())

	if err != nil || containsManualReview(matches) {
		g.screenBreaker.RecordFailure()
	} else {
		g.screenBreaker.RecordSuccess()
	}
	if err != nil {
		return []model.MatchResult{screening.ManualReviewPlaceholder(name, g.acceptThreshold)}
	}
	return matches
}

// settle executes the decision's side effects: case management, filings and
// publication. A transient publish failure retries the whole event; the
// idempotency claim is released by the caller so redelivery is processed.
func (g *Gateway) settle(ctx context.Context, event *model.InboundEvent, decision *model.Decision) Outcome {
	for _, action := range decision.Actions {
		switch action {
		case model.ActionOpenCase:
			if _, opened, err := g.cases.OpenCase(decision); err != nil {
				g.logger.Errorw("Failed to open case", "fingerprint", decision.Fingerprint, "error", err)
				return Retry
			} else if opened {
				metrics.CasesOpen.Inc()
			}

		case model.ActionRegulatoryFiling:
			filing := &collab.Filing{
				Fingerprint: decision.Fingerprint,
				ActorID:     decision.ActorID,
				Tier:        decision.Tier,
				Narrative:   escalation.BuildNarrative(decision),
				SubmittedAt: time.Now(),
			}
			if _, err := g.filings.Submit(ctx, filing); err != nil {
				g.logger.Errorw("Failed to submit regulatory filing",
					"fingerprint", decision.Fingerprint, "error", err)
				return Retry
			}
		}
	}

	if !g.publishBreaker.Allow() {
		g.logger.Warnw("Publisher breaker open", "fingerprint", decision.Fingerprint)
		return Retry
	}
	if err := g.publisher.PublishDecision(ctx, decision); err != nil {
		g.publishBreaker.RecordFailure()
		if model.IsRetryable(err) {
			return Retry
		}
		if dlErr := g.deadLetters.DeadLetter(ctx, event, fmt.Sprintf("publish failed: %v", err)); dlErr != nil {
			return Retry
		}
		return DeadLetter
	}
	g.publishBreaker.RecordSuccess()
	return Ack
}

func (g *Gateway) releaseClaim(ctx context.Context, fingerprint string) {
	releaser, ok := g.idem.(idempotency.Releaser)
	if !ok {
		return
	}
	if err := releaser.Release(ctx, fingerprint); err != nil {
		g.logger.Warnw("Failed to release idempotency claim", "fingerprint", fingerprint, "error", err)
	}
}

// validate checks the envelope fields every event must carry.
func validate(event *model.InboundEvent) error {
	if event.ID == "" {
		return &model.ValidationError{Field: "event_id", Reason: "missing"}
	}
	if event.SourceTopic == "" {
		return &model.ValidationError{Field: "source_topic", Reason: "missing"}
	}
	switch event.Type {
	case model.EventTypeTransaction, model.EventTypeScreeningResult:
	default:
		return &model.ValidationError{Field: "event_type", Reason: fmt.Sprintf("unknown type %q", event.Type)}
	}
	if len(event.Payload) == 0 {
		return &model.ValidationError{Field: "payload", Reason: "empty"}
	}
	return nil
}

// parseTransaction normalizes the event payload into a TransactionRecord.
func parseTransaction(event *model.InboundEvent) (*model.TransactionRecord, error) {
	tx := &model.TransactionRecord{
		ID:             stringField(event.Payload, "transaction_id"),
		ActorID:        stringField(event.Payload, "actor_id"),
		CounterpartyID: stringField(event.Payload, "counterparty_id"),
		Currency:       stringField(event.Payload, "currency"),
		Channel:        stringField(event.Payload, "channel"),
		OriginCountry:  stringField(event.Payload, "origin_country"),
		DestCountry:    stringField(event.Payload, "dest_country"),
	}
	if tx.ID == "" {
		tx.ID = event.ID
	}
	if tx.ActorID == "" {
		return nil, &model.ValidationError{Field: "actor_id", Reason: "missing"}
	}

	amount, err := amountField(event.Payload)
	if err != nil {
		return nil, err
	}
	tx.Amount = amount

	tx.Timestamp = event.ReceivedAt
	if raw := stringField(event.Payload, "timestamp"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, &model.ValidationError{Field: "timestamp", Reason: "not RFC3339"}
		}
		tx.Timestamp = ts
	}
	return tx, nil
}

type screeningResultPayload struct {
	actorID string
	matches []model.MatchResult
}

// parseScreeningResult normalizes an externally-produced screening outcome.
func parseScreeningResult(event *model.InboundEvent) (*screeningResultPayload, error) {
	actorID := stringField(event.Payload, "actor_id")
	if actorID == "" {
		return nil, &model.ValidationError{Field: "actor_id", Reason: "missing"}
	}

	rawMatches, _ := event.Payload["matches"].([]interface{})
	result := &screeningResultPayload{actorID: actorID}
	for _, raw := range rawMatches {
		fields, ok := raw.(map[string]interface{})
		if !ok {
			return nil, &model.ValidationError{Field: "matches", Reason: "entry is not an object"}
		}
		score, ok := fields["score"].(float64)
		if !ok {
			return nil, &model.ValidationError{Field: "matches.score", Reason: "missing or not a number"}
		}
		result.matches = append(result.matches, model.MatchResult{
			CandidateID:  stringField(fields, "candidate_id"),
			MatchedName:  stringField(fields, "matched_name"),
			Score:        score,
			Category:     model.CandidateCategory(stringField(fields, "category")),
			ListSource:   stringField(fields, "list_source"),
			SearchTerm:   stringField(fields, "search_term"),
			ManualReview: boolField(fields, "manual_review"),
		})
	}
	return result, nil
}

// actorName extracts the display name screened for a transaction.
func actorName(event *model.InboundEvent) string {
	return stringField(event.Payload, "actor_name")
}

func containsManualReview(matches []model.MatchResult) bool {
	for _, match := range matches {
		if match.ManualReview {
			return true
		}
	}
	return false
}

func stringField(payload map[string]interface{}, key string) string {
	value, _ := payload[key].(string)
	return value
}

func boolField(payload map[string]interface{}, key string) bool {
	value, _ := payload[key].(bool)
	return value
}

// amountField accepts both JSON numbers and decimal strings.
func amountField(payload map[string]interface{}) (decimal.Decimal, error) {
	switch value := payload["amount"].(type) {
	case string:
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, &model.ValidationError{Field: "amount", Reason: "not a decimal string"}
		}
		return validAmount(amount)
	case float64:
		return validAmount(decimal.NewFromFloat(value))
	case nil:
		return decimal.Zero, &model.ValidationError{Field: "amount", Reason: "missing"}
	default:
		return decimal.Zero, &model.ValidationError{Field: "amount", Reason: "unsupported type"}
	}
}

func validAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, &model.ValidationError{Field: "amount", Reason: "negative"}
	}
	return amount, nil
}
