package escalation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/waqiti/amlguard/internal/config"
	"github.com/waqiti/amlguard/internal/model"
)

// CaseManager owns alert cases. It enforces at most one open case per event
// fingerprint and monotonic status transitions.
type CaseManager struct {
	mu     sync.RWMutex
	cases  map[uuid.UUID]*model.AlertCase
	byFP   map[string]uuid.UUID
	cfg    config.EscalationConfig
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewCaseManager creates an in-memory case manager.
func NewCaseManager(cfg config.EscalationConfig, logger *zap.SugaredLogger) *CaseManager {
	return &CaseManager{
		cases:  make(map[uuid.UUID]*model.AlertCase),
		byFP:   make(map[string]uuid.UUID),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// OpenCase opens a case for the decision, or returns the existing open case
// for the same fingerprint. A redelivered event never opens a second case.
func (cm *CaseManager) OpenCase(decision *model.Decision) (*model.AlertCase, bool, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if id, exists := cm.byFP[decision.Fingerprint]; exists {
		existing := cm.cases[id]
		cm.logger.Debugw("Case already open for fingerprint",
			"case_id", id, "fingerprint", decision.Fingerprint)
		return copyCase(existing), false, nil
	}

	status := model.CaseOpen
	// Degraded decisions go straight to a human queue: the automated signals
	// were incomplete so an analyst must review the event itself.
	for _, t := range decision.TriggeredRules {
		if t == model.TriggerServiceDegraded || t == model.TriggerManualReview {
			status = model.CaseUnderReview
			break
		}
	}

	created := cm.now()
	alertCase := &model.AlertCase{
		ID:          uuid.New(),
		Fingerprint: decision.Fingerprint,
		ActorID:     decision.ActorID,
		Tier:        decision.Tier,
		Triggers:    append([]model.TriggerType(nil), decision.TriggeredRules...),
		Status:      status,
		Narrative:   BuildNarrative(decision),
		CreatedAt:   created,
		SLADeadline: created.Add(cm.slaFor(decision.Tier)),
	}

	cm.cases[alertCase.ID] = alertCase
	cm.byFP[decision.Fingerprint] = alertCase.ID

	cm.logger.Infow("Alert case opened",
		"case_id", alertCase.ID,
		"actor_id", alertCase.ActorID,
		"tier", alertCase.Tier,
		"status", alertCase.Status,
		"sla_deadline", alertCase.SLADeadline,
	)
	return copyCase(alertCase), true, nil
}

// Transition moves a case to the next status. Regressions and transitions out
// of terminal statuses are rejected.
func (cm *CaseManager) Transition(id uuid.UUID, next model.CaseStatus) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	alertCase, exists := cm.cases[id]
	if !exists {
		return fmt.Errorf("case %s not found", id)
	}
	if !alertCase.Status.CanTransitionTo(next) {
		return fmt.Errorf("invalid case transition %s -> %s for case %s", alertCase.Status, next, id)
	}

	previous := alertCase.Status
	alertCase.Status = next
	if next.Terminal() {
		delete(cm.byFP, alertCase.Fingerprint)
	}

	cm.logger.Infow("Case status changed",
		"case_id", id, "from", previous, "to", next)
	return nil
}

// Get returns a copy of the case, if it exists.
func (cm *CaseManager) Get(id uuid.UUID) (*model.AlertCase, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	alertCase, exists := cm.cases[id]
	if !exists {
		return nil, false
	}
	return copyCase(alertCase), true
}

// OpenByFingerprint returns the open case for the fingerprint, if any.
func (cm *CaseManager) OpenByFingerprint(fingerprint string) (*model.AlertCase, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	id, exists := cm.byFP[fingerprint]
	if !exists {
		return nil, false
	}
	return copyCase(cm.cases[id]), true
}

// Overdue returns open cases whose SLA deadline has passed, oldest first.
func (cm *CaseManager) Overdue() []*model.AlertCase {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	now := cm.now()
	var overdue []*model.AlertCase
	for _, alertCase := range cm.cases {
		if !alertCase.Status.Terminal() && now.After(alertCase.SLADeadline) {
			overdue = append(overdue, copyCase(alertCase))
		}
	}
	sort.Slice(overdue, func(i, j int) bool {
		return overdue[i].SLADeadline.Before(overdue[j].SLADeadline)
	})
	return overdue
}

func (cm *CaseManager) slaFor(tier model.RiskTier) time.Duration {
	switch tier {
	case model.TierCritical:
		return cm.cfg.CriticalSLA
	case model.TierHigh:
		return cm.cfg.HighSLA
	default:
		return cm.cfg.MediumSLA
	}
}

func copyCase(c *model.AlertCase) *model.AlertCase {
	dup := *c
	dup.Triggers = append([]model.TriggerType(nil), c.Triggers...)
	return &dup
}

// BuildNarrative renders the human-readable case narrative used in SAR
// review. It lists the tier, composite score and every triggered rule.
func BuildNarrative(decision *model.Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Risk assessment for actor %s: tier %s, composite score %.1f.",
		decision.ActorID, decision.Tier, decision.Score)

	if len(decision.TriggeredRules) > 0 {
		b.WriteString(" Triggered rules: ")
		for i, trigger := range decision.TriggeredRules {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(describeTrigger(trigger))
		}
		b.WriteString(".")
	}
	return b.String()
}

func describeTrigger(trigger model.TriggerType) string {
	switch trigger {
	case model.TriggerStructuring:
		return "repeated transactions just below the reporting threshold (possible structuring)"
	case model.TriggerRoundAmount:
		return "large round-amount transaction"
	case model.TriggerVelocityExceeded:
		return "transaction velocity above configured window limits"
	case model.TriggerHighRiskGeography:
		return "counterparty in a high-risk or sanctioned jurisdiction"
	case model.TriggerRapidSuccession:
		return "rapid succession of transactions"
	case model.TriggerSmurfing:
		return "many small transfers across distinct counterparties (possible smurfing)"
	case model.TriggerLayering:
		return "high ratio of distinct amounts (possible layering)"
	case model.TriggerUnusualHours:
		return "activity concentrated in unusual hours"
	case model.TriggerGeographicAnomaly:
		return "anomalous cross-border movement pattern"
	case model.TriggerSanctionsMatch:
		return "name match against a sanctions list"
	case model.TriggerPEPMatch:
		return "name match against a politically exposed persons list"
	case model.TriggerCTRRequired:
		return "transaction at or above the currency transaction reporting threshold"
	case model.TriggerServiceDegraded:
		return "one or more risk evaluators degraded during assessment"
	case model.TriggerManualReview:
		return "screening providers unavailable, manual review required"
	default:
		return string(trigger)
	}
}
