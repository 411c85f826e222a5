// Package flow selects the flow type and agent for each request.
package flow

import (
	"strings"
	"unicode"

	"github.com/BTreeMap/OracleRouter/internal/models"
)

// Intent is what the user appears to be asking for.
type Intent string

const (
	IntentCrisis              Intent = "crisis"
	IntentEmotionalProcessing Intent = "emotional_processing"
	IntentShadow              Intent = "shadow"
	IntentArchetype           Intent = "archetype"
	IntentIntegration         Intent = "integration"
	IntentSpiritual           Intent = "spiritual"
	IntentDream               Intent = "dream"
	IntentRitual              Intent = "ritual"
	IntentJournal             Intent = "journal"
	IntentGrounding           Intent = "grounding"
	IntentSomatic             Intent = "somatic"
	IntentBalance             Intent = "balance"
	IntentDialogue            Intent = "dialogue"
	IntentCelebration         Intent = "celebration"
	IntentGuidance            Intent = "guidance"
)

// IntentClassifier maps raw input text to an Intent.
// Implementations must be safe for concurrent use and must never fail;
// unknown input maps to IntentGuidance.
type IntentClassifier interface {
	ClassifyIntent(text string) Intent
}

type intentRule struct {
	intent   Intent
	keywords []string
}

// intentRules are evaluated in order; the first rule with a matching keyword wins.
var intentRules = []intentRule{
	{IntentCrisis, []string{
		"suicide", "suicidal", "kill myself", "end my life", "end it all", "want to die",
		"self-harm", "self harm", "hurt myself", "can't go on", "cannot go on", "no reason to live",
	}},
	{IntentEmotionalProcessing, []string{
		"i feel", "i'm feeling", "feeling", "overwhelmed", "anxious", "anxiety", "depressed",
		"lonely", "grief", "grieving", "heartbroken", "hopeless", "despair", "sad", "angry", "scared", "afraid", "upset",
	}},
	{IntentShadow, []string{"shadow", "dark side", "what i hide", "repressed", "projection"}},
	{IntentArchetype, []string{"archetype", "archetypal", "the hero", "the trickster", "the sage", "inner child"}},
	{IntentIntegration, []string{"integrate", "integration", "make sense of", "bring it together", "apply what"}},
	{IntentSpiritual, []string{"spiritual", "soul", "divine", "sacred", "purpose", "meaning of", "universe"}},
	{IntentDream, []string{"dream", "nightmare", "vision last night"}},
	{IntentRitual, []string{"ritual", "ceremony", "altar", "full moon", "new moon"}},
	{IntentJournal, []string{"journal", "write about", "reflect on", "reflection", "diary"}},
	{IntentGrounding, []string{"ground", "grounding", "center myself", "centered", "present moment", "panic"}},
	{IntentSomatic, []string{"my body", "breath", "tension", "somatic", "tight chest", "physical"}},
	{IntentBalance, []string{"balance", "element", "out of sync", "scattered"}},
	{IntentDialogue, []string{"talk to", "conversation with", "voice", "dialogue", "speak with"}},
	{IntentCelebration, []string{
		"celebrate", "celebration", "grateful", "gratitude", "breakthrough", "proud",
		"achieved", "finally did", "good news",
	}},
}

// keywordSuffixes are the inflections a keyword may carry and still match.
var keywordSuffixes = []string{"", "s", "es", "d", "ed", "ing"}

// KeywordClassifier is the default IntentClassifier. Keywords match whole words
// (or a plain inflection of the last word), so "ground" does not fire on "background".
type KeywordClassifier struct{}

// ClassifyIntent implements IntentClassifier.
func (KeywordClassifier) ClassifyIntent(text string) Intent {
	normalized := normalizeWords(text)
	if normalized == "" {
		return IntentGuidance
	}
	padded := " " + normalized + " "
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if containsWords(padded, kw) {
				return rule.intent
			}
		}
	}
	return IntentGuidance
}

// normalizeWords lowercases text and joins its words with single spaces.
// Apostrophes and hyphens inside a word are kept ("can't", "self-harm").
func normalizeWords(text string) string {
	lower := strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-'
	})
	out := words[:0]
	for _, w := range words {
		if w = strings.Trim(w, "'-"); w != "" {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}

func containsWords(padded, keyword string) bool {
	for _, suffix := range keywordSuffixes {
		if strings.Contains(padded, " "+keyword+suffix+" ") {
			return true
		}
	}
	return false
}

// intentFlows maps each intent to its flow type.
var intentFlows = map[Intent]models.FlowType{
	IntentCrisis:              models.FlowCrisisSupport,
	IntentEmotionalProcessing: models.FlowJournalReflection,
	IntentShadow:              models.FlowShadowWork,
	IntentArchetype:           models.FlowArchetypalExploration,
	IntentIntegration:         models.FlowIntegrationProcess,
	IntentSpiritual:           models.FlowOracleGuidance,
	IntentDream:               models.FlowDreamAnalysis,
	IntentRitual:              models.FlowRitualCeremony,
	IntentJournal:             models.FlowJournalReflection,
	IntentGrounding:           models.FlowGroundingExercise,
	IntentSomatic:             models.FlowSomaticPractice,
	IntentBalance:             models.FlowElementalBalancing,
	IntentDialogue:            models.FlowVoiceDialogue,
	IntentCelebration:         models.FlowCelebrationAcknowledgment,
	IntentGuidance:            models.FlowOracleGuidance,
}

// FlowForIntent returns the flow an intent maps to; unknown intents map to oracle guidance.
func FlowForIntent(intent Intent) models.FlowType {
	if ft, ok := intentFlows[intent]; ok {
		return ft
	}
	return models.FlowOracleGuidance
}
