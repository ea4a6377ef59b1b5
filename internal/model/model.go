package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RiskTier represents the discrete risk tier assigned to an evaluation
type RiskTier string

const (
	TierLow      RiskTier = "LOW"
	TierMedium   RiskTier = "MEDIUM"
	TierHigh     RiskTier = "HIGH"
	TierCritical RiskTier = "CRITICAL"
)

// Rank returns the ordinal position of the tier. Higher means riskier.
func (t RiskTier) Rank() int {
	switch t {
	case TierLow:
		return 0
	case TierMedium:
		return 1
	case TierHigh:
		return 2
	case TierCritical:
		return 3
	default:
		return -1
	}
}

// Max returns the higher of two tiers.
func (t RiskTier) Max(other RiskTier) RiskTier {
	if other.Rank() > t.Rank() {
		return other
	}
	return t
}

// TriggerType identifies the rule or signal that contributed to a decision
type TriggerType string

const (
	TriggerStructuring       TriggerType = "STRUCTURING"
	TriggerRoundAmount       TriggerType = "ROUND_AMOUNT"
	TriggerVelocityExceeded  TriggerType = "VELOCITY_EXCEEDED"
	TriggerHighRiskGeography TriggerType = "HIGH_RISK_GEOGRAPHY"
	TriggerRapidSuccession   TriggerType = "RAPID_SUCCESSION"
	TriggerSmurfing          TriggerType = "SMURFING"
	TriggerLayering          TriggerType = "LAYERING"
	TriggerUnusualHours      TriggerType = "UNUSUAL_HOURS"
	TriggerGeographicAnomaly TriggerType = "GEOGRAPHIC_ANOMALY"
	TriggerSanctionsMatch    TriggerType = "SANCTIONS_MATCH"
	TriggerPEPMatch          TriggerType = "PEP_MATCH"
	TriggerCTRRequired       TriggerType = "CTR_REQUIRED"
	TriggerServiceDegraded   TriggerType = "SERVICE_DEGRADED"
	TriggerManualReview      TriggerType = "MANUAL_REVIEW"
)

// Severity grades an anomaly signal emitted by an evaluator
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// EventType identifies the closed set of inbound event categories
type EventType string

const (
	EventTypeTransaction     EventType = "TRANSACTION"
	EventTypeScreeningResult EventType = "SCREENING_RESULT"
)

// InboundEvent is the envelope received from the upstream event stream.
// Immutable once received.
type InboundEvent struct {
	ID          string                 `json:"event_id"`
	Type        EventType              `json:"event_type"`
	SourceTopic string                 `json:"source_topic"`
	Payload     map[string]interface{} `json:"payload"`
	ReceivedAt  time.Time              `json:"received_at"`
}

// Fingerprint derives the stable deduplication identifier for the event.
// Stable across redeliveries of the same logical event.
func (e *InboundEvent) Fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", e.SourceTopic, e.ID, e.Type)))
	return hex.EncodeToString(sum[:])
}

// TransactionRecord holds the normalized transaction extracted from an event
// payload. Never mutated after construction.
type TransactionRecord struct {
	ID             string          `json:"id"`
	ActorID        string          `json:"actor_id"`
	CounterpartyID string          `json:"counterparty_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Timestamp      time.Time       `json:"timestamp"`
	Channel        string          `json:"channel"`
	OriginCountry  string          `json:"origin_country"`
	DestCountry    string          `json:"dest_country"`
}

// RiskProfile tracks the evolving risk posture of an actor. Owned by the
// composite scorer; read by the escalation engine.
type RiskProfile struct {
	ActorID        string    `json:"actor_id"`
	BaselineScore  float64   `json:"baseline_score"`
	RecentScore    float64   `json:"recent_score"`
	Tier           RiskTier  `json:"tier"`
	LastAssessedAt time.Time `json:"last_assessed_at"`
}

// CandidateCategory classifies reference-data entries by screening category
type CandidateCategory string

const (
	CategorySanctioned  CandidateCategory = "SANCTIONED"
	CategoryHeadOfState CandidateCategory = "HEAD_OF_STATE"
	CategoryPEP         CandidateCategory = "PEP"
	CategoryRelative    CandidateCategory = "RELATIVE_OR_ASSOCIATE"
)

// ScreeningCandidate is a sanctions/PEP reference-data record. Read-only from
// the pipeline's perspective.
type ScreeningCandidate struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Aliases     []string          `json:"aliases"`
	DateOfBirth string            `json:"date_of_birth"`
	Nationality string            `json:"nationality"`
	Category    CandidateCategory `json:"category"`
	Position    string            `json:"position"`
	Active      bool              `json:"active"`
	ListSource  string            `json:"list_source"`
}

// MatchResult is a scored screening match produced per screening call.
type MatchResult struct {
	CandidateID  string            `json:"candidate_id"`
	MatchedName  string            `json:"matched_name"`
	Score        float64           `json:"score"`
	Category     CandidateCategory `json:"category"`
	ListSource   string            `json:"list_source"`
	SearchTerm   string            `json:"search_term"`
	ManualReview bool              `json:"manual_review"`
}

// Anomaly is a tagged behavioral signal emitted by the pattern analyzer.
type Anomaly struct {
	Type        TriggerType `json:"type"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	DetectedAt  time.Time   `json:"detected_at"`
}

// CaseStatus tracks the lifecycle of an alert case. Transitions are
// monotonic: OPEN -> UNDER_REVIEW -> {APPROVED, ESCALATED, CLOSED}.
type CaseStatus string

const (
	CaseOpen        CaseStatus = "OPEN"
	CaseUnderReview CaseStatus = "UNDER_REVIEW"
	CaseApproved    CaseStatus = "APPROVED"
	CaseEscalated   CaseStatus = "ESCALATED"
	CaseClosed      CaseStatus = "CLOSED"
)

// rank orders statuses for the monotonic-transition check. Terminal statuses
// share the highest rank.
func (s CaseStatus) rank() int {
	switch s {
	case CaseOpen:
		return 0
	case CaseUnderReview:
		return 1
	case CaseApproved, CaseEscalated, CaseClosed:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether the status ends the case lifecycle.
func (s CaseStatus) Terminal() bool { return s.rank() == 2 }

// CanTransitionTo reports whether moving to next would keep the case status
// monotonic. A case never regresses and never leaves a terminal status.
func (s CaseStatus) CanTransitionTo(next CaseStatus) bool {
	if s.rank() == 2 {
		return false
	}
	return next.rank() > s.rank()
}

// AlertCase is the investigation case opened for a non-LOW decision.
// At most one open case exists per fingerprint.
type AlertCase struct {
	ID          uuid.UUID     `json:"id"`
	Fingerprint string        `json:"fingerprint"`
	ActorID     string        `json:"actor_id"`
	Tier        RiskTier      `json:"tier"`
	Triggers    []TriggerType `json:"triggers"`
	Status      CaseStatus    `json:"status"`
	Narrative   string        `json:"narrative"`
	CreatedAt   time.Time     `json:"created_at"`
	SLADeadline time.Time     `json:"sla_deadline"`
}

// IdempotencyRecord marks an event fingerprint as processed. Existence within
// the TTL window means the event must not be reprocessed for side effects.
type IdempotencyRecord struct {
	Fingerprint string    `json:"fingerprint"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}

// ActionType is the fixed set of escalation consequences
type ActionType string

const (
	ActionRecordOnly        ActionType = "RECORD_ONLY"
	ActionOpenCase          ActionType = "OPEN_CASE"
	ActionQueueReview       ActionType = "QUEUE_REVIEW"
	ActionSARReview         ActionType = "SAR_REVIEW"
	ActionNotifyCompliance  ActionType = "NOTIFY_COMPLIANCE"
	ActionFreezeFunds       ActionType = "FREEZE_FUNDS"
	ActionRegulatoryFiling  ActionType = "REGULATORY_FILING"
	ActionEnhancedDiligence ActionType = "ENHANCED_DUE_DILIGENCE"
	ActionNotifySenior      ActionType = "NOTIFY_SENIOR"
)

// Decision is the final output of the pipeline for one processed event.
type Decision struct {
	Fingerprint    string        `json:"fingerprint"`
	ActorID        string        `json:"actor_id"`
	Score          float64       `json:"score"`
	Tier           RiskTier      `json:"tier"`
	TriggeredRules []TriggerType `json:"triggered_rules"`
	Actions        []ActionType  `json:"actions"`
	DecidedAt      time.Time     `json:"decided_at"`
}

// HasTrigger reports whether the decision carries the given trigger.
func (d *Decision) HasTrigger(t TriggerType) bool {
	for _, trig := range d.TriggeredRules {
		if trig == t {
			return true
		}
	}
	return false
}
