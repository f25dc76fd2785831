package agents

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/blackstreet-ai/animated-invention/internal/application/orchestrator"
	"github.com/blackstreet-ai/animated-invention/internal/domain"
)

// Config is handed to an agent constructor.
type Config struct {
	// MaxRetries overrides the pipeline retry limit. Zero keeps the default.
	MaxRetries int
	Logger     *zap.Logger

	// Sources maps an agent kind to the unit name that produces its output
	// in this pipeline. Kinds without an entry are looked up under their own
	// name.
	Sources map[string]string

	// Topic generation settings.
	TopicCount     int
	ScoringWeights ScoringWeights
	SubAgents      []SubAgent
}

func (c Config) source(kind string) string {
	if name, ok := c.Sources[kind]; ok {
		return name
	}
	return kind
}

// Constructor builds a unit named name.
type Constructor func(name string, cfg Config) domain.Unit

// Registry maps agent kinds to constructors.
type Registry struct {
	mu       sync.RWMutex
	ctors    map[string]Constructor
	defaults Config
}

// NewRegistry returns a registry holding every built-in agent. defaults are
// merged into the Config of each constructed agent.
func NewRegistry(defaults Config) *Registry {
	r := &Registry{
		ctors:    make(map[string]Constructor),
		defaults: defaults,
	}
	builtins := map[string]Constructor{
		KindTopicGeneration: func(n string, c Config) domain.Unit { return NewTopicGenerationAgent(n, c) },
		KindResearch:        func(n string, c Config) domain.Unit { return NewResearchAgent(n, c) },
		KindScriptwriter:    func(n string, c Config) domain.Unit { return NewScriptwriterAgent(n, c) },
		KindVisual:          func(n string, c Config) domain.Unit { return NewVisualAgent(n, c) },
		KindAudio:           func(n string, c Config) domain.Unit { return NewAudioAgent(n, c) },
		KindEditor:          func(n string, c Config) domain.Unit { return NewEditorAgent(n, c) },
		KindQualityControl:  func(n string, c Config) domain.Unit { return NewQualityControlAgent(n, c) },
	}
	for kind, ctor := range builtins {
		r.ctors[kind] = ctor
	}
	return r
}

// Register adds a constructor for kind. Registering a kind twice is an error.
func (r *Registry) Register(kind string, ctor Constructor) error {
	if kind == "" || ctor == nil {
		return fmt.Errorf("agent kind and constructor are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ctors[kind]; exists {
		return fmt.Errorf("agent kind %q already registered", kind)
	}
	r.ctors[kind] = ctor
	return nil
}

// New constructs the agent of kind under the unit name name.
func (r *Registry) New(kind, name string, maxRetries int, sources map[string]string) (domain.Unit, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.Configf(name, "unknown agent kind %q", kind)
	}

	cfg := r.defaults
	cfg.MaxRetries = maxRetries
	cfg.Sources = sources
	return ctor(name, cfg), nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.ctors))
	for kind := range r.ctors {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// DefaultDependencies returns the standard stage ordering. With discovery,
// research waits for topic generation.
func DefaultDependencies(discoverTopics bool) map[string][]string {
	deps := map[string][]string{
		KindResearch:       nil,
		KindScriptwriter:   {KindResearch},
		KindVisual:         {KindScriptwriter},
		KindAudio:          {KindScriptwriter},
		KindEditor:         {KindScriptwriter, KindVisual, KindAudio},
		KindQualityControl: {KindEditor},
	}
	if discoverTopics {
		deps[KindTopicGeneration] = nil
		deps[KindResearch] = []string{KindTopicGeneration}
	}
	return deps
}

// defaultOrder lists the standard stages in declaration order.
var defaultOrder = []string{
	KindResearch,
	KindScriptwriter,
	KindVisual,
	KindAudio,
	KindEditor,
	KindQualityControl,
}

// DefaultPipeline builds the standard pipeline, each stage named after its
// kind. maxRetries of zero leaves the manager default in effect.
func (r *Registry) DefaultPipeline(discoverTopics bool, maxRetries int) (orchestrator.Pipeline, error) {
	order := defaultOrder
	if discoverTopics {
		order = append([]string{KindTopicGeneration}, defaultOrder...)
	}

	units := make([]domain.Unit, 0, len(order))
	for _, kind := range order {
		u, err := r.New(kind, kind, 0, nil)
		if err != nil {
			return orchestrator.Pipeline{}, err
		}
		units = append(units, u)
	}
	return orchestrator.Pipeline{
		Units:        units,
		Dependencies: DefaultDependencies(discoverTopics),
		MaxRetries:   maxRetries,
	}, nil
}
