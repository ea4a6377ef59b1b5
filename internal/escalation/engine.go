// Package escalation turns risk assessments into ordered action plans and
// manages the alert cases those actions open.
package escalation

import "github.com/waqiti/amlguard/internal/model"

// Decide maps a risk tier and its triggers to the ordered action plan. It is
// a pure function: same inputs, same plan, no side effects. Execution of the
// plan is the dispatcher's job.
func Decide(tier model.RiskTier, triggers []model.TriggerType) []model.ActionType {
	switch tier {
	case model.TierLow:
		actions := []model.ActionType{model.ActionRecordOnly}
		// A currency transaction report is owed on the amount alone, even
		// when the activity is otherwise unremarkable.
		if hasTrigger(triggers, model.TriggerCTRRequired) {
			actions = append(actions, model.ActionRegulatoryFiling)
		}
		return actions

	case model.TierMedium:
		actions := []model.ActionType{model.ActionOpenCase, model.ActionQueueReview}
		if hasTrigger(triggers, model.TriggerCTRRequired) {
			actions = append(actions, model.ActionRegulatoryFiling)
		}
		return actions

	case model.TierHigh:
		actions := []model.ActionType{
			model.ActionOpenCase,
			model.ActionSARReview,
			model.ActionNotifyCompliance,
		}
		if hasTrigger(triggers, model.TriggerStructuring) || hasTrigger(triggers, model.TriggerCTRRequired) {
			actions = append(actions, model.ActionRegulatoryFiling)
		}
		if hasTrigger(triggers, model.TriggerHighRiskGeography) {
			actions = append(actions, model.ActionEnhancedDiligence)
		}
		// A co-occurring velocity or structuring violation escalates to a
		// funds freeze even below CRITICAL.
		if hasTrigger(triggers, model.TriggerVelocityExceeded) || hasTrigger(triggers, model.TriggerStructuring) {
			actions = append(actions, model.ActionFreezeFunds)
		}
		return actions

	case model.TierCritical:
		return []model.ActionType{
			model.ActionOpenCase,
			model.ActionFreezeFunds,
			model.ActionSARReview,
			model.ActionRegulatoryFiling,
			model.ActionEnhancedDiligence,
			model.ActionNotifyCompliance,
			model.ActionNotifySenior,
		}

	default:
		// Unknown tier is treated as the most severe plan short of freezing
		// funds: never downgrade on bad input.
		return []model.ActionType{
			model.ActionOpenCase,
			model.ActionSARReview,
			model.ActionNotifyCompliance,
		}
	}
}

func hasTrigger(triggers []model.TriggerType, want model.TriggerType) bool {
	for _, t := range triggers {
		if t == want {
			return true
		}
	}
	return false
}
