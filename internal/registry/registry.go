// Package registry provides the static catalog of agents and their per-flow capabilities.
//
// A Registry is immutable after construction and safe for concurrent use.
package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/OracleRouter/internal/models"
)

//go:embed agents.yaml
var defaultCatalog []byte

// Error variables for catalog validation.
var (
	ErrEmptyCatalog        = errors.New("agent catalog is empty")
	ErrDefaultAgentMissing = errors.New("default agent not found in catalog")
	ErrDuplicateAgent      = errors.New("duplicate agent id")
	ErrInvalidCapability   = errors.New("capability score out of range")
)

// DefaultMinCapability is the score an agent needs to be considered for a flow.
const DefaultMinCapability = 0.6

// DefaultAgentID is the catalog id of the always-present fallback agent.
const DefaultAgentID = "maya"

// Opts holds registry construction options.
type Opts struct {
	MinCapability  float64
	DefaultAgentID string
}

// Option configures a Registry.
type Option func(*Opts)

// WithMinCapability sets the eligibility threshold.
func WithMinCapability(v float64) Option {
	return func(o *Opts) {
		o.MinCapability = v
	}
}

// WithDefaultAgent sets the fallback agent id.
func WithDefaultAgent(id string) Option {
	return func(o *Opts) {
		o.DefaultAgentID = id
	}
}

// Registry is the read-only agent catalog.
type Registry struct {
	agents        []models.AgentProfile // sorted by id
	byID          map[string]int
	byFlow        map[models.FlowType][]models.AgentProfile
	defaultAgent  models.AgentProfile
	minCapability float64
}

type catalogFile struct {
	Agents []models.AgentProfile `yaml:"agents"`
}

// Load builds a registry from the embedded catalog.
func Load(opts ...Option) (*Registry, error) {
	return Parse(defaultCatalog, opts...)
}

// LoadFile builds a registry from a YAML catalog on disk.
func LoadFile(path string, opts ...Option) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent catalog %s: %w", path, err)
	}
	return Parse(data, opts...)
}

// Parse builds a registry from YAML catalog bytes.
func Parse(data []byte, opts ...Option) (*Registry, error) {
	var cat catalogFile
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse agent catalog: %w", err)
	}
	return New(cat.Agents, opts...)
}

// New validates the agents and builds a registry. It fails fast on an empty
// catalog, a missing default agent, duplicate ids, or out-of-range scores.
func New(agents []models.AgentProfile, opts ...Option) (*Registry, error) {
	o := Opts{MinCapability: DefaultMinCapability, DefaultAgentID: DefaultAgentID}
	for _, opt := range opts {
		opt(&o)
	}

	if len(agents) == 0 {
		return nil, ErrEmptyCatalog
	}

	r := &Registry{
		agents:        make([]models.AgentProfile, 0, len(agents)),
		byID:          make(map[string]int, len(agents)),
		byFlow:        make(map[models.FlowType][]models.AgentProfile),
		minCapability: o.MinCapability,
	}

	for _, a := range agents {
		if a.ID == "" {
			return nil, fmt.Errorf("agent %q: id is required", a.Name)
		}
		if _, dup := r.byID[a.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAgent, a.ID)
		}
		for ft, score := range a.Capabilities {
			if !models.IsValidFlowType(ft) {
				return nil, fmt.Errorf("agent %s: %w: %q", a.ID, models.ErrUnknownFlowType, ft)
			}
			if score < 0 || score > 1 {
				return nil, fmt.Errorf("agent %s flow %s: %w: %v", a.ID, ft, ErrInvalidCapability, score)
			}
		}
		if a.Safety.MaxIntensity == "" {
			a.Safety.MaxIntensity = models.IntensityModerate
		}
		if len(a.Modalities) == 0 {
			a.Modalities = []models.Modality{models.ModalityText}
		}
		r.byID[a.ID] = -1
		r.agents = append(r.agents, a)
	}

	sort.Slice(r.agents, func(i, j int) bool { return r.agents[i].ID < r.agents[j].ID })
	for i, a := range r.agents {
		r.byID[a.ID] = i
	}

	idx, ok := r.byID[o.DefaultAgentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDefaultAgentMissing, o.DefaultAgentID)
	}
	r.defaultAgent = r.agents[idx]

	for _, ft := range models.AllFlowTypes {
		var eligible []models.AgentProfile
		for _, a := range r.agents {
			if a.Capability(ft) >= r.minCapability {
				eligible = append(eligible, a)
			}
		}
		sort.SliceStable(eligible, func(i, j int) bool {
			return eligible[i].Capability(ft) > eligible[j].Capability(ft)
		})
		r.byFlow[ft] = eligible
	}

	if uncovered := r.UncoveredFlows(); len(uncovered) > 0 {
		slog.Warn("Registry.New: flows without a capable agent will use the default agent", "flows", uncovered, "defaultAgent", r.defaultAgent.ID)
	}
	slog.Debug("Registry.New: catalog loaded", "agents", len(r.agents), "defaultAgent", r.defaultAgent.ID)

	return r, nil
}

// AgentsForFlow returns agents whose capability for the flow meets the threshold,
// sorted by that score descending with ties broken by agent id.
func (r *Registry) AgentsForFlow(ft models.FlowType) []models.AgentProfile {
	eligible := r.byFlow[ft]
	out := make([]models.AgentProfile, len(eligible))
	copy(out, eligible)
	return out
}

// DefaultAgent returns the always-present fallback agent.
func (r *Registry) DefaultAgent() models.AgentProfile {
	return r.defaultAgent
}

// Agent looks up an agent by id.
func (r *Registry) Agent(id string) (models.AgentProfile, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return models.AgentProfile{}, false
	}
	return r.agents[idx], true
}

// All returns every agent sorted by id.
func (r *Registry) All() []models.AgentProfile {
	out := make([]models.AgentProfile, len(r.agents))
	copy(out, r.agents)
	return out
}

// MinCapability returns the eligibility threshold.
func (r *Registry) MinCapability() float64 {
	return r.minCapability
}

// UncoveredFlows lists flows with no agent at or above the threshold.
func (r *Registry) UncoveredFlows() []models.FlowType {
	var out []models.FlowType
	for _, ft := range models.AllFlowTypes {
		if len(r.byFlow[ft]) == 0 {
			out = append(out, ft)
		}
	}
	return out
}
