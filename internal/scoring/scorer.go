// Package scoring aggregates evaluator outputs into a single bounded
// composite score and a discrete risk tier, and maintains per-actor risk
// profiles.
package scoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/waqiti/amlguard/internal/config"
	"github.com/waqiti/amlguard/internal/model"
	"github.com/waqiti/amlguard/internal/pattern"
	"github.com/waqiti/amlguard/internal/velocity"
)

// Signals carries every evaluator output for one event into the scorer.
type Signals struct {
	Velocity  *velocity.Result
	Anomalies []model.Anomaly
	Matches   []model.MatchResult
}

// Assessment is the scorer's output: the bounded composite score, the tier
// and the full set of triggered rules.
type Assessment struct {
	Score    float64             `json:"score"`
	Tier     model.RiskTier      `json:"tier"`
	Triggers []model.TriggerType `json:"triggers"`
}

// Scorer computes deterministic weighted composite scores. Weights and tier
// floors are fixed configuration, validated at startup, never learned.
type Scorer struct {
	profiles *ProfileStore
	cfg      config.ScoringConfig
	high     float64 // high-confidence match bound for the CRITICAL override
	logger   *zap.SugaredLogger
}

// NewScorer creates a composite risk scorer.
func NewScorer(profiles *ProfileStore, cfg config.ScoringConfig, highConfidence float64, logger *zap.SugaredLogger) *Scorer {
	return &Scorer{profiles: profiles, cfg: cfg, high: highConfidence, logger: logger}
}

// Score aggregates the signals into an assessment and updates the actor's
// risk profile as a side effect.
func (s *Scorer) Score(ctx context.Context, actorID string, signals *Signals) *Assessment {
	profile := s.profiles.Get(actorID)

	velocityScore, geoScore := velocityComponents(signals.Velocity)
	patternScore := pattern.HighestSeverity(signals.Anomalies)
	matchScore := highestMatch(signals.Matches)

	score := s.cfg.ProfileWeight*profile.BaselineScore +
		s.cfg.PatternWeight*patternScore +
		s.cfg.GeoWeight*geoScore +
		s.cfg.VelocityWeight*velocityScore +
		s.cfg.MatchWeight*matchScore

	if score > 100 {
		score = 100
	} else if score < 0 {
		score = 0
	}

	triggers := s.collectTriggers(signals)
	tier := s.tierForScore(score)

	// Independent signals each set a tier floor; the highest always wins.
	for _, trigger := range triggers {
		tier = tier.Max(triggerFloor(trigger))
	}

	// Confirmed high-confidence sanctions/PEP match forces CRITICAL
	// irrespective of the numeric score. Overrides never reduce tier.
	if s.hasConfirmedMatch(signals.Matches) {
		tier = tier.Max(model.TierCritical)
	}

	s.profiles.Update(actorID, score, tier)

	s.logger.Infow("Composite risk assessment",
		"actor_id", actorID,
		"score", score,
		"tier", tier,
		"triggers", len(triggers),
	)

	return &Assessment{Score: score, Tier: tier, Triggers: triggers}
}

// velocityComponents reduces the velocity result to its scoring components.
func velocityComponents(result *velocity.Result) (velocityScore, geoScore float64) {
	if result == nil {
		return 0, 0
	}

	// Each velocity finding carries a fixed contribution; the strongest one
	// sets the component.
	if result.CTRRequired {
		velocityScore = 30
	}
	if result.RoundAmount && velocityScore < 40 {
		velocityScore = 40
	}
	if result.Violated() && velocityScore < 70 {
		velocityScore = 70
	}
	if result.Structuring {
		velocityScore = 85
	}
	if result.Degraded && velocityScore < 50 {
		velocityScore = 50
	}
	return velocityScore, result.GeoScore
}

// highestMatch returns the strongest screening match score.
func highestMatch(matches []model.MatchResult) float64 {
	highest := 0.0
	for _, match := range matches {
		if match.Score > highest {
			highest = match.Score
		}
	}
	return highest
}

// collectTriggers merges evaluator triggers, deduplicated in a stable order.
func (s *Scorer) collectTriggers(signals *Signals) []model.TriggerType {
	seen := make(map[model.TriggerType]struct{})
	var triggers []model.TriggerType

	add := func(t model.TriggerType) {
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		triggers = append(triggers, t)
	}

	if signals.Velocity != nil {
		for _, t := range signals.Velocity.Triggers {
			add(t)
		}
	}
	for _, anomaly := range signals.Anomalies {
		add(anomaly.Type)
	}
	for _, match := range signals.Matches {
		if match.ManualReview {
			add(model.TriggerManualReview)
			add(model.TriggerServiceDegraded)
			continue
		}
		switch match.Category {
		case model.CategorySanctioned:
			add(model.TriggerSanctionsMatch)
		default:
			add(model.TriggerPEPMatch)
		}
	}
	return triggers
}

// tierForScore maps the numeric score to a tier via the configured floors.
func (s *Scorer) tierForScore(score float64) model.RiskTier {
	switch {
	case score >= s.cfg.CriticalFloor:
		return model.TierCritical
	case score >= s.cfg.HighFloor:
		return model.TierHigh
	case score >= s.cfg.MediumFloor:
		return model.TierMedium
	default:
		return model.TierLow
	}
}

// triggerFloor returns the minimum tier a trigger justifies on its own.
// SERVICE_DEGRADED floors at MEDIUM: risk-bearing failures are never scored
// clean (fail-closed).
func triggerFloor(trigger model.TriggerType) model.RiskTier {
	switch trigger {
	case model.TriggerStructuring, model.TriggerSmurfing:
		return model.TierHigh
	case model.TriggerVelocityExceeded, model.TriggerLayering,
		model.TriggerGeographicAnomaly, model.TriggerServiceDegraded,
		model.TriggerManualReview, model.TriggerHighRiskGeography:
		return model.TierMedium
	default:
		return model.TierLow
	}
}

// hasConfirmedMatch reports whether a non-relative, non-placeholder match
// meets the high-confidence bound.
func (s *Scorer) hasConfirmedMatch(matches []model.MatchResult) bool {
	for _, match := range matches {
		if match.ManualReview || match.Category == model.CategoryRelative {
			continue
		}
		if match.Score >= s.high {
			return true
		}
	}
	return false
}

// ProfileStore owns the per-actor risk profiles. The scorer writes them on
// every processed event; the escalation engine reads them.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]model.RiskProfile
}

// NewProfileStore creates an empty profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]model.RiskProfile)}
}

// Get returns the actor's profile, or a zeroed LOW profile if unseen.
func (ps *ProfileStore) Get(actorID string) model.RiskProfile {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if profile, exists := ps.profiles[actorID]; exists {
		return profile
	}
	return model.RiskProfile{ActorID: actorID, Tier: model.TierLow}
}

// Update records the latest assessment and folds it into the baseline with
// an exponential moving average, so a single spike decays over time while a
// sustained pattern raises the baseline.
func (ps *ProfileStore) Update(actorID string, score float64, tier model.RiskTier) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	profile, exists := ps.profiles[actorID]
	if !exists {
		profile = model.RiskProfile{ActorID: actorID}
	}

	const alpha = 0.2
	profile.BaselineScore = profile.BaselineScore*(1-alpha) + score*alpha
	profile.RecentScore = score
	profile.Tier = tier
	profile.LastAssessedAt = time.Now()

	ps.profiles[actorID] = profile
}
