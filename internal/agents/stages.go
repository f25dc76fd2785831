package agents

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/blackstreet-ai/animated-invention/internal/domain"
)

// Placeholder artifact locations.
const (
	PlaceholderImage      = "assets/placeholder_image.png"
	PlaceholderVoiceover  = "assets/placeholder_voiceover.mp3"
	PlaceholderFinalVideo = "output/placeholder_video.mp4"
)

// ResearchNotes is the output of the research agent.
type ResearchNotes struct {
	Topic string `json:"topic"`
	Notes string `json:"notes"`
}

// Script is the output of the scriptwriter agent.
type Script struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Assets lists the files produced by a media agent.
type Assets struct {
	Files []string `json:"files"`
}

// Video is the output of the editor agent.
type Video struct {
	Path    string   `json:"path"`
	Visuals []string `json:"visuals"`
	Audio   []string `json:"audio"`
}

// QCReport is the output of the quality control agent.
type QCReport struct {
	Passed bool   `json:"passed"`
	Notes  string `json:"notes"`
}

// ResearchAgent gathers background notes on the run's topic.
type ResearchAgent struct{ base }

func NewResearchAgent(name string, cfg Config) *ResearchAgent {
	return &ResearchAgent{base: newBase(name, cfg)}
}

func (a *ResearchAgent) Execute(ctx context.Context, state *domain.RunState) (any, error) {
	if err := a.begin(ctx, state); err != nil {
		return nil, err
	}
	topic := resolveTopic(state)
	a.logger.Info("researching topic", zap.String("topic", topic))
	return ResearchNotes{
		Topic: topic,
		Notes: fmt.Sprintf("[STUB] research notes on %q", topic),
	}, nil
}

// ScriptwriterAgent turns research notes into a narration script.
type ScriptwriterAgent struct {
	base
	research string
}

// NewScriptwriterAgent reads research notes from the unit named research when
// it ran in the same pipeline.
func NewScriptwriterAgent(name string, cfg Config) *ScriptwriterAgent {
	return &ScriptwriterAgent{base: newBase(name, cfg), research: cfg.source(KindResearch)}
}

func (a *ScriptwriterAgent) Execute(ctx context.Context, state *domain.RunState) (any, error) {
	if err := a.begin(ctx, state); err != nil {
		return nil, err
	}
	notes, ok, err := outputOf[ResearchNotes](state, a.research)
	if err != nil {
		return nil, err
	}
	if !ok {
		notes = ResearchNotes{Topic: resolveTopic(state)}
	}
	return Script{
		Title: notes.Topic,
		Body:  fmt.Sprintf("[STUB] script for %q", notes.Topic),
	}, nil
}

// VisualAgent produces the images that accompany the script.
type VisualAgent struct{ base }

func NewVisualAgent(name string, cfg Config) *VisualAgent {
	return &VisualAgent{base: newBase(name, cfg)}
}

func (a *VisualAgent) Execute(ctx context.Context, state *domain.RunState) (any, error) {
	if err := a.begin(ctx, state); err != nil {
		return nil, err
	}
	return Assets{Files: []string{PlaceholderImage}}, nil
}

// AudioAgent produces the voiceover.
type AudioAgent struct{ base }

func NewAudioAgent(name string, cfg Config) *AudioAgent {
	return &AudioAgent{base: newBase(name, cfg)}
}

func (a *AudioAgent) Execute(ctx context.Context, state *domain.RunState) (any, error) {
	if err := a.begin(ctx, state); err != nil {
		return nil, err
	}
	return Assets{Files: []string{PlaceholderVoiceover}}, nil
}

// EditorAgent assembles visuals and audio into the final video.
type EditorAgent struct {
	base
	visual string
	audio  string
}

func NewEditorAgent(name string, cfg Config) *EditorAgent {
	return &EditorAgent{
		base:   newBase(name, cfg),
		visual: cfg.source(KindVisual),
		audio:  cfg.source(KindAudio),
	}
}

func (a *EditorAgent) Execute(ctx context.Context, state *domain.RunState) (any, error) {
	if err := a.begin(ctx, state); err != nil {
		return nil, err
	}
	visuals, _, err := outputOf[Assets](state, a.visual)
	if err != nil {
		return nil, err
	}
	audio, _, err := outputOf[Assets](state, a.audio)
	if err != nil {
		return nil, err
	}
	a.logger.Info("assembling video",
		zap.Int("visuals", len(visuals.Files)),
		zap.Int("audio", len(audio.Files)))
	return Video{
		Path:    PlaceholderFinalVideo,
		Visuals: visuals.Files,
		Audio:   audio.Files,
	}, nil
}

// ErrNoVideo is returned by quality control when no edited video exists.
var ErrNoVideo = errors.New("no edited video to review")

// QualityControlAgent reviews the final video and records the verdict in the
// run metadata.
type QualityControlAgent struct {
	base
	editor string
}

func NewQualityControlAgent(name string, cfg Config) *QualityControlAgent {
	return &QualityControlAgent{base: newBase(name, cfg), editor: cfg.source(KindEditor)}
}

func (a *QualityControlAgent) Execute(ctx context.Context, state *domain.RunState) (any, error) {
	if err := a.begin(ctx, state); err != nil {
		return nil, err
	}
	video, ok, err := outputOf[Video](state, a.editor)
	if err != nil {
		return nil, err
	}
	if !ok || video.Path == "" {
		return nil, ErrNoVideo
	}
	report := QCReport{Passed: true, Notes: "[STUB] QC passed"}
	state.SetMetadata(MetaQCPassed, report.Passed)
	state.SetMetadata(MetaQCNotes, report.Notes)
	a.logger.Info("quality control finished", zap.Bool("passed", report.Passed))
	return report, nil
}
