package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/BTreeMap/OracleRouter/internal/models"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	r, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if r.DefaultAgent().ID != DefaultAgentID {
		t.Errorf("default agent = %q, want %q", r.DefaultAgent().ID, DefaultAgentID)
	}
	if len(r.All()) != 7 {
		t.Errorf("expected 7 agents, got %d", len(r.All()))
	}
	if uncovered := r.UncoveredFlows(); len(uncovered) != 0 {
		t.Errorf("embedded catalog leaves flows uncovered: %v", uncovered)
	}
}

func TestAgentsForFlowSortedAndFiltered(t *testing.T) {
	r, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for _, ft := range models.AllFlowTypes {
		agents := r.AgentsForFlow(ft)
		for i, a := range agents {
			if a.Capability(ft) < DefaultMinCapability {
				t.Errorf("%s: agent %s below threshold (%v)", ft, a.ID, a.Capability(ft))
			}
			if i == 0 {
				continue
			}
			prev := agents[i-1]
			if prev.Capability(ft) < a.Capability(ft) {
				t.Errorf("%s: agents not sorted by score: %s before %s", ft, prev.ID, a.ID)
			}
			if prev.Capability(ft) == a.Capability(ft) && prev.ID > a.ID {
				t.Errorf("%s: tie not broken by id: %s before %s", ft, prev.ID, a.ID)
			}
		}
	}

	crisis := r.AgentsForFlow(models.FlowCrisisSupport)
	if len(crisis) == 0 || crisis[0].ID != "sentinel" {
		t.Errorf("expected sentinel to lead crisis support, got %+v", crisis)
	}
}

func TestAgentsForFlowTieBreak(t *testing.T) {
	agents := []models.AgentProfile{
		{ID: "zeta", Capabilities: map[models.FlowType]float64{models.FlowDreamAnalysis: 0.8}},
		{ID: "alpha", Capabilities: map[models.FlowType]float64{models.FlowDreamAnalysis: 0.8}},
		{ID: "maya", Capabilities: map[models.FlowType]float64{models.FlowDreamAnalysis: 0.9}},
	}
	r, err := New(agents)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got := r.AgentsForFlow(models.FlowDreamAnalysis)
	want := []string{"maya", "alpha", "zeta"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		agents  []models.AgentProfile
		wantErr error
	}{
		{"empty", nil, ErrEmptyCatalog},
		{"no default", []models.AgentProfile{{ID: "fire"}}, ErrDefaultAgentMissing},
		{"duplicate", []models.AgentProfile{{ID: "maya"}, {ID: "maya"}}, ErrDuplicateAgent},
		{"bad score", []models.AgentProfile{{ID: "maya", Capabilities: map[models.FlowType]float64{models.FlowShadowWork: 1.4}}}, ErrInvalidCapability},
		{"bad flow", []models.AgentProfile{{ID: "maya", Capabilities: map[models.FlowType]float64{"tarot": 0.5}}}, models.ErrUnknownFlowType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.agents)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUncoveredFlowsFallBackToDefault(t *testing.T) {
	r, err := New([]models.AgentProfile{
		{ID: "maya", Capabilities: map[models.FlowType]float64{models.FlowOracleGuidance: 0.9}},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if len(r.UncoveredFlows()) != len(models.AllFlowTypes)-1 {
		t.Errorf("expected %d uncovered flows, got %v", len(models.AllFlowTypes)-1, r.UncoveredFlows())
	}
	if len(r.AgentsForFlow(models.FlowShadowWork)) != 0 {
		t.Error("expected no capable agents for shadow work")
	}
}

func TestEvaluateMatch(t *testing.T) {
	r, err := New([]models.AgentProfile{
		{
			ID:             "maya",
			Capabilities:   map[models.FlowType]float64{models.FlowJournalReflection: 0.8},
			EmotionalRange: []string{"supportive", "warm"},
			Modalities:     []models.Modality{models.ModalityText},
			Safety:         models.SafetyProfile{MaxIntensity: models.IntensityModerate},
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tests := []struct {
		name string
		req  Requirements
		want float64
	}{
		{"flow only", Requirements{Flow: models.FlowJournalReflection}, 0.8},
		{"tags half", Requirements{EmotionalTags: []string{"supportive", "fierce"}}, 0.5},
		{"modality miss", Requirements{Modality: models.ModalityVoice}, 0},
		{"intensity ok", Requirements{Intensity: models.IntensityGentle}, 1},
		{"intensity too deep", Requirements{Intensity: models.IntensityDeep}, 0},
		{"crisis miss", Requirements{CrisisCapable: true}, 0},
		{"combined", Requirements{Flow: models.FlowJournalReflection, Modality: models.ModalityText}, 0.9},
		{"nothing supplied", Requirements{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.EvaluateMatch("maya", tt.req)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("EvaluateMatch() = %v, want %v", got, tt.want)
			}
		})
	}

	if got := r.EvaluateMatch("ghost", Requirements{Flow: models.FlowJournalReflection}); got != 0 {
		t.Errorf("unknown agent should score 0, got %v", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	catalog := `agents:
  - id: solo
    name: Solo
    capabilities:
      oracle_guidance: 0.7
    emotional_range: [supportive]
`
	if err := os.WriteFile(path, []byte(catalog), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err := LoadFile(path, WithDefaultAgent("solo"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	solo, ok := r.Agent("solo")
	if !ok {
		t.Fatal("agent solo not found")
	}
	if solo.Safety.MaxIntensity != models.IntensityModerate {
		t.Errorf("expected moderate default max intensity, got %q", solo.Safety.MaxIntensity)
	}
	if !solo.SupportsModality(models.ModalityText) {
		t.Error("expected text modality default")
	}
}

func TestWithMinCapability(t *testing.T) {
	r, err := Load(WithMinCapability(0.9))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for _, a := range r.AgentsForFlow(models.FlowGroundingExercise) {
		if a.Capability(models.FlowGroundingExercise) < 0.9 {
			t.Errorf("agent %s below raised threshold", a.ID)
		}
	}
	if r.MinCapability() != 0.9 {
		t.Errorf("MinCapability() = %v", r.MinCapability())
	}
}
