package agents

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blackstreet-ai/animated-invention/internal/domain"
)

const (
	defaultTopicCount     = 10
	defaultContentType    = "educational"
	defaultAudience       = "general"
	researchSubAgentLimit = 3
	untitledTopic         = "Untitled Topic"
	undecidedCoreArgument = "TBD"
)

// ScoringWeights weigh the signals used to rank topic ideas.
type ScoringWeights struct {
	Trend      float64 `json:"trend" yaml:"trend"`
	Competitor float64 `json:"competitor" yaml:"competitor"`
	Keyword    float64 `json:"keyword" yaml:"keyword"`
}

// DefaultScoringWeights favour trend momentum.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{Trend: 0.5, Competitor: 0.2, Keyword: 0.3}
}

// Recommendation is one ranked topic idea.
type Recommendation struct {
	Title        string   `json:"title"`
	CoreArgument string   `json:"core_argument"`
	Keywords     []string `json:"keywords"`
	Score        float64  `json:"score"`
	Rationale    string   `json:"rationale"`
}

// SubAgent is one research step of topic discovery.
type SubAgent interface {
	Name() string
	Run(ctx context.Context, params map[string]any) (map[string]any, error)
}

// stubSubAgent echoes a placeholder result tagged with its name.
type stubSubAgent struct{ name string }

func (s stubSubAgent) Name() string { return s.name }

func (s stubSubAgent) Run(ctx context.Context, _ map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]any{
		"agent": s.name,
		"data":  fmt.Sprintf("[STUB] %s output", s.name),
	}, nil
}

// TopicGenerationAgent discovers and ranks candidate topics for the run.
//
// Trend, competitor and keyword research run concurrently, at most three at a
// time. Their findings feed ideation, which proposes twice as many ideas as
// requested, and scoring, which keeps the best TopicCount. The ranked list is
// returned and also stored in the run metadata so later agents can pick the
// top topic when the caller gave none.
type TopicGenerationAgent struct {
	base
	topicCount  int
	contentType string
	weights     ScoringWeights
	research    []SubAgent
}

func NewTopicGenerationAgent(name string, cfg Config) *TopicGenerationAgent {
	count := cfg.TopicCount
	if count < 1 {
		count = defaultTopicCount
	}
	weights := cfg.ScoringWeights
	if weights == (ScoringWeights{}) {
		weights = DefaultScoringWeights()
	}
	research := cfg.SubAgents
	if research == nil {
		research = []SubAgent{
			stubSubAgent{name: "trend_analysis"},
			stubSubAgent{name: "competitor_analysis"},
			stubSubAgent{name: "keyword_research"},
		}
	}
	return &TopicGenerationAgent{
		base:        newBase(name, cfg),
		topicCount:  count,
		contentType: defaultContentType,
		weights:     weights,
		research:    research,
	}
}

func (a *TopicGenerationAgent) Execute(ctx context.Context, state *domain.RunState) (any, error) {
	if err := a.begin(ctx, state); err != nil {
		return nil, err
	}

	niche := state.InputString(InputTopic)
	if niche == "" {
		niche = defaultNiche
	}
	audience := state.InputString(InputAudience)
	if audience == "" {
		audience = defaultAudience
	}
	params := map[string]any{
		"niche":       niche,
		"audience":    audience,
		"competitors": competitorsOf(state),
	}

	findings, err := a.runResearch(ctx, params)
	if err != nil {
		return nil, err
	}

	ideas := ideate(niche, a.contentType, a.topicCount*2, findings)
	recs := score(ideas, a.weights, a.topicCount)

	state.SetMetadata(MetaTopicRecommendations, recs)
	a.logger.Info("topic discovery finished",
		zap.String("niche", niche),
		zap.Int("recommendations", len(recs)))
	return recs, nil
}

// runResearch runs every research sub-agent and returns their results keyed
// by sub-agent name.
func (a *TopicGenerationAgent) runResearch(ctx context.Context, params map[string]any) (map[string]map[string]any, error) {
	results := make([]map[string]any, len(a.research))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(researchSubAgentLimit)
	for i, sub := range a.research {
		i, sub := i, sub
		g.Go(func() error {
			out, err := sub.Run(gctx, params)
			if err != nil {
				return fmt.Errorf("%s: %w", sub.Name(), err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	findings := make(map[string]map[string]any, len(results))
	for i, sub := range a.research {
		findings[sub.Name()] = results[i]
	}
	return findings, nil
}

// competitorsOf accepts either a list or a single competitor name.
func competitorsOf(state *domain.RunState) []string {
	raw, ok := state.Input(InputCompetitors)
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

type idea struct {
	Title        string
	CoreArgument string
	Keywords     []string
	signals      ScoringWeights
}

func ideate(niche, contentType string, count int, findings map[string]map[string]any) []idea {
	sources := make([]string, 0, len(findings))
	for name := range findings {
		sources = append(sources, name)
	}
	sort.Strings(sources)

	ideas := make([]idea, count)
	for i := range ideas {
		// Signals decay with position so ranking is deterministic.
		decay := 1 / float64(i+1)
		ideas[i] = idea{
			Title:        fmt.Sprintf("%s %s idea #%d", niche, contentType, i+1),
			CoreArgument: fmt.Sprintf("[STUB] core argument drawn from %d research sources", len(sources)),
			Keywords:     []string{niche, contentType},
			signals: ScoringWeights{
				Trend:      decay,
				Competitor: float64(count-i) / float64(count),
				Keyword:    decay,
			},
		}
	}
	return ideas
}

// score ranks ideas by weighted signal and keeps the best topN.
func score(ideas []idea, w ScoringWeights, topN int) []Recommendation {
	recs := make([]Recommendation, len(ideas))
	for i, id := range ideas {
		recs[i] = Recommendation{
			Title:        id.Title,
			CoreArgument: id.CoreArgument,
			Keywords:     id.Keywords,
			Score: w.Trend*id.signals.Trend +
				w.Competitor*id.signals.Competitor +
				w.Keyword*id.signals.Keyword,
			Rationale: "[STUB] weighted trend, competitor and keyword signals",
		}
		if recs[i].Title == "" {
			recs[i].Title = untitledTopic
		}
		if recs[i].CoreArgument == "" {
			recs[i].CoreArgument = undecidedCoreArgument
		}
		if recs[i].Keywords == nil {
			recs[i].Keywords = []string{}
		}
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	if len(recs) > topN {
		recs = recs[:topN]
	}
	return recs
}
