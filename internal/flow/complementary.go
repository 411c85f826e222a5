package flow

import "github.com/BTreeMap/OracleRouter/internal/models"

// complementaryFlows lists, per flow, the flows that pair well with it, most suitable first.
var complementaryFlows = map[models.FlowType][]models.FlowType{
	models.FlowOracleGuidance:            {models.FlowJournalReflection, models.FlowIntegrationProcess, models.FlowVoiceDialogue},
	models.FlowCrisisSupport:             {models.FlowGroundingExercise, models.FlowSomaticPractice},
	models.FlowGroundingExercise:         {models.FlowSomaticPractice, models.FlowElementalBalancing},
	models.FlowJournalReflection:         {models.FlowIntegrationProcess, models.FlowOracleGuidance, models.FlowVoiceDialogue},
	models.FlowRitualCeremony:            {models.FlowElementalBalancing, models.FlowCelebrationAcknowledgment, models.FlowGroundingExercise},
	models.FlowShadowWork:                {models.FlowJournalReflection, models.FlowIntegrationProcess, models.FlowGroundingExercise},
	models.FlowArchetypalExploration:     {models.FlowJournalReflection, models.FlowDreamAnalysis, models.FlowOracleGuidance},
	models.FlowDreamAnalysis:             {models.FlowJournalReflection, models.FlowArchetypalExploration, models.FlowIntegrationProcess},
	models.FlowIntegrationProcess:        {models.FlowJournalReflection, models.FlowGroundingExercise, models.FlowCelebrationAcknowledgment},
	models.FlowElementalBalancing:        {models.FlowGroundingExercise, models.FlowSomaticPractice, models.FlowRitualCeremony},
	models.FlowSomaticPractice:           {models.FlowGroundingExercise, models.FlowElementalBalancing},
	models.FlowCelebrationAcknowledgment: {models.FlowIntegrationProcess, models.FlowRitualCeremony, models.FlowJournalReflection},
	models.FlowVoiceDialogue:             {models.FlowJournalReflection, models.FlowOracleGuidance, models.FlowShadowWork},
}

// ComplementaryFlows returns a copy of the complementary list for the flow.
func ComplementaryFlows(ft models.FlowType) []models.FlowType {
	return append([]models.FlowType(nil), complementaryFlows[ft]...)
}
