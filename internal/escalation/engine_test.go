package escalation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/waqiti/amlguard/internal/model"
)

func TestDecideLowIsRecordOnly(t *testing.T) {
	actions := Decide(model.TierLow, nil)
	assert.Equal(t, []model.ActionType{model.ActionRecordOnly}, actions)
}

func TestDecideMediumOpensCaseAndQueuesReview(t *testing.T) {
	actions := Decide(model.TierMedium, []model.TriggerType{model.TriggerRoundAmount})
	assert.Equal(t, []model.ActionType{model.ActionOpenCase, model.ActionQueueReview}, actions)
}

func TestDecideMediumWithCTRAddsFiling(t *testing.T) {
	actions := Decide(model.TierMedium, []model.TriggerType{model.TriggerCTRRequired})
	assert.Contains(t, actions, model.ActionRegulatoryFiling)
}

func TestDecideLowWithCTRStillFiles(t *testing.T) {
	actions := Decide(model.TierLow, []model.TriggerType{model.TriggerCTRRequired})
	assert.Equal(t, []model.ActionType{model.ActionRecordOnly, model.ActionRegulatoryFiling}, actions)
	assert.NotContains(t, actions, model.ActionOpenCase)
}

func TestDecideHighEscalatesToSARReview(t *testing.T) {
	actions := Decide(model.TierHigh, []model.TriggerType{model.TriggerSmurfing})
	assert.Equal(t, []model.ActionType{
		model.ActionOpenCase,
		model.ActionSARReview,
		model.ActionNotifyCompliance,
	}, actions)
}

func TestDecideHighStructuringAddsFiling(t *testing.T) {
	actions := Decide(model.TierHigh, []model.TriggerType{model.TriggerStructuring})
	assert.Contains(t, actions, model.ActionRegulatoryFiling)
}

func TestDecideHighVelocityViolationAddsFreeze(t *testing.T) {
	actions := Decide(model.TierHigh, []model.TriggerType{model.TriggerVelocityExceeded})
	assert.Contains(t, actions, model.ActionFreezeFunds)

	actions = Decide(model.TierHigh, []model.TriggerType{model.TriggerStructuring})
	assert.Contains(t, actions, model.ActionFreezeFunds)
}

func TestDecideHighWithoutVelocityViolationNeverFreezes(t *testing.T) {
	actions := Decide(model.TierHigh, []model.TriggerType{model.TriggerSmurfing, model.TriggerHighRiskGeography})
	assert.NotContains(t, actions, model.ActionFreezeFunds)
}

func TestDecideHighGeographyAddsDiligence(t *testing.T) {
	actions := Decide(model.TierHigh, []model.TriggerType{model.TriggerHighRiskGeography})
	assert.Contains(t, actions, model.ActionEnhancedDiligence)
}

func TestDecideCriticalFreezesAndFiles(t *testing.T) {
	actions := Decide(model.TierCritical, []model.TriggerType{model.TriggerSanctionsMatch})
	assert.Contains(t, actions, model.ActionFreezeFunds)
	assert.Contains(t, actions, model.ActionRegulatoryFiling)
	assert.Contains(t, actions, model.ActionEnhancedDiligence)
	assert.Contains(t, actions, model.ActionNotifySenior)
	assert.Equal(t, model.ActionOpenCase, actions[0])
}

func TestDecideIsDeterministic(t *testing.T) {
	triggers := []model.TriggerType{model.TriggerStructuring, model.TriggerCTRRequired}
	first := Decide(model.TierHigh, triggers)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Decide(model.TierHigh, triggers))
	}
}

func TestDecideUnknownTierNeverDowngrades(t *testing.T) {
	actions := Decide(model.RiskTier("BOGUS"), nil)
	assert.Contains(t, actions, model.ActionOpenCase)
	assert.NotContains(t, actions, model.ActionRecordOnly)
}
