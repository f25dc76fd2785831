package agents

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/blackstreet-ai/animated-invention/internal/domain"
)

// Agent kinds understood by the registry.
const (
	KindTopicGeneration = "topic_generation"
	KindResearch        = "research"
	KindScriptwriter    = "scriptwriter"
	KindVisual          = "visual"
	KindAudio           = "audio"
	KindEditor          = "editor"
	KindQualityControl  = "quality_control"
)

// Run inputs read by the agents.
const (
	InputTopic       = "topic"
	InputCompetitors = "competitors"
	InputAudience    = "audience"
)

// Metadata keys written by the agents.
const (
	MetaTopicRecommendations = "topic_recommendations"
	MetaQCPassed             = "qc_passed"
	MetaQCNotes              = "qc_notes"
)

// base carries the identity shared by every agent.
type base struct {
	name       string
	maxRetries int
	logger     *zap.Logger
}

func newBase(name string, cfg Config) base {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{
		name:       name,
		maxRetries: cfg.MaxRetries,
		logger:     logger.With(zap.String("agent", name)),
	}
}

func (b base) Name() string    { return b.name }
func (b base) MaxRetries() int { return b.maxRetries }

// begin is called at the top of every Execute.
func (b base) begin(ctx context.Context, state *domain.RunState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.logger.Debug("agent starting", zap.String("run_id", state.RunID))
	return nil
}

// outputOf returns the output of unit when it has the expected type.
// ok is false when the unit produced nothing, for example because it is not
// part of this pipeline.
func outputOf[T any](state *domain.RunState, unit string) (T, bool, error) {
	var zero T
	raw, ok := state.Output(unit)
	if !ok {
		return zero, false, nil
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false, fmt.Errorf("output of %q has type %T, want %T", unit, raw, zero)
	}
	return v, true, nil
}

// resolveTopic picks the caller's topic, falling back to the best discovered
// recommendation and finally to a generic niche.
func resolveTopic(state *domain.RunState) string {
	if topic := state.InputString(InputTopic); topic != "" {
		return topic
	}
	if raw, ok := state.Metadata(MetaTopicRecommendations); ok {
		if recs, ok := raw.([]Recommendation); ok && len(recs) > 0 {
			return recs[0].Title
		}
	}
	return defaultNiche
}

const defaultNiche = "general"
