// Package definition loads pipeline definition files.
//
// A definition names the units of a pipeline, the agent kind behind each one
// and its prerequisites. Files are YAML (.yml, .yaml) or HCL (.hcl):
//
//	max_retries = 2
//
//	unit "research" {}
//
//	unit "script" {
//	  agent      = "scriptwriter"
//	  depends_on = ["research"]
//	}
//
// Build resolves a definition against an agent registry into a pipeline the
// orchestrator can run. Graph problems such as unknown prerequisites or cycles
// are left to the orchestrator.
package definition

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"

	"github.com/blackstreet-ai/animated-invention/internal/agents"
	"github.com/blackstreet-ai/animated-invention/internal/application/orchestrator"
	"github.com/blackstreet-ai/animated-invention/internal/domain"
)

// Format is the syntax of a definition file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return FormatYAML, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("pipeline definition: unsupported file extension %q", filepath.Ext(path))
	}
}

// Definition describes one pipeline.
type Definition struct {
	// MaxRetries is the global attempt limit. Zero keeps the runtime default.
	MaxRetries int `yaml:"max_retries"`
	// Executor optionally selects the layer execution strategy.
	Executor orchestrator.ExecutorKind `yaml:"executor"`
	Logging  Logging                   `yaml:"logging"`
	Units    []Unit                    `yaml:"units"`
}

// Logging holds log settings carried in the definition file.
type Logging struct {
	Level string `yaml:"level" hcl:"level,optional"`
}

// Unit is one stage of the pipeline.
type Unit struct {
	Name string `yaml:"name" hcl:"name,label"`
	// Agent is the registry kind. Empty means the kind equals Name.
	Agent      string   `yaml:"agent" hcl:"agent,optional"`
	DependsOn  []string `yaml:"depends_on" hcl:"depends_on,optional"`
	MaxRetries int      `yaml:"max_retries" hcl:"max_retries,optional"`
}

// hclFile is the top-level body of an HCL definition.
type hclFile struct {
	MaxRetries int      `hcl:"max_retries,optional"`
	Executor   string   `hcl:"executor,optional"`
	Logging    *Logging `hcl:"logging,block"`
	Units      []Unit   `hcl:"unit,block"`
}

// LoadFile reads and parses the definition at path.
func LoadFile(path string) (Definition, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Definition{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("pipeline definition: read %s: %w", path, err)
	}
	def, err := Parse(data, format, path)
	if err != nil {
		return Definition{}, fmt.Errorf("%w (%s)", err, path)
	}
	return def, nil
}

// Parse decodes a definition. filename is used in HCL diagnostics only.
func Parse(data []byte, format Format, filename string) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("pipeline definition: payload is empty")
	}

	var def Definition
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return Definition{}, fmt.Errorf("pipeline definition: decode yaml: %w", err)
		}
	case FormatHCL:
		parsed, err := parseHCL(data, filename)
		if err != nil {
			return Definition{}, err
		}
		def = parsed
	default:
		return Definition{}, fmt.Errorf("pipeline definition: unknown format %q", format)
	}

	return def.Normalized()
}

func parseHCL(data []byte, filename string) (Definition, error) {
	if filename == "" {
		filename = "pipeline.hcl"
	}
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return Definition{}, fmt.Errorf("pipeline definition: parse hcl: %w", diags)
	}

	var raw hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return Definition{}, fmt.Errorf("pipeline definition: decode hcl: %w", diags)
	}

	def := Definition{
		MaxRetries: raw.MaxRetries,
		Executor:   orchestrator.ExecutorKind(raw.Executor),
		Units:      raw.Units,
	}
	if raw.Logging != nil {
		def.Logging = *raw.Logging
	}
	return def, nil
}

// Normalized checks the definition and fills in defaults.
func (d Definition) Normalized() (Definition, error) {
	if len(d.Units) == 0 {
		return Definition{}, fmt.Errorf("pipeline definition: no units defined")
	}
	if d.MaxRetries < 0 {
		return Definition{}, fmt.Errorf("pipeline definition: max_retries must be >= 0, got %d", d.MaxRetries)
	}
	switch d.Executor {
	case "", orchestrator.ExecutorConcurrent, orchestrator.ExecutorSequential:
	default:
		return Definition{}, fmt.Errorf("pipeline definition: unknown executor %q", d.Executor)
	}

	seen := make(map[string]struct{}, len(d.Units))
	units := make([]Unit, len(d.Units))
	for i, u := range d.Units {
		u.Name = strings.TrimSpace(u.Name)
		if u.Name == "" {
			return Definition{}, fmt.Errorf("pipeline definition: unit %d has no name", i)
		}
		if _, dup := seen[u.Name]; dup {
			return Definition{}, fmt.Errorf("pipeline definition: duplicate unit %q", u.Name)
		}
		seen[u.Name] = struct{}{}
		if u.MaxRetries < 0 {
			return Definition{}, fmt.Errorf("pipeline definition: unit %q: max_retries must be >= 0, got %d", u.Name, u.MaxRetries)
		}
		if u.Agent == "" {
			u.Agent = u.Name
		}
		u.DependsOn = append([]string(nil), u.DependsOn...)
		units[i] = u
	}
	d.Units = units
	return d, nil
}

// WithTopicDiscovery returns a copy that starts with topic generation. The
// new unit becomes a prerequisite of every research unit, or of every root
// unit when the pipeline has no research stage. Definitions that already
// generate topics are returned unchanged.
func (d Definition) WithTopicDiscovery() Definition {
	for _, u := range d.Units {
		if u.Agent == agents.KindTopicGeneration {
			return d
		}
	}

	hasResearch := false
	for _, u := range d.Units {
		if u.Agent == agents.KindResearch {
			hasResearch = true
			break
		}
	}

	name := agents.KindTopicGeneration
	for _, u := range d.Units {
		if u.Name == name {
			name += "_discovery"
			break
		}
	}

	units := make([]Unit, 0, len(d.Units)+1)
	units = append(units, Unit{Name: name, Agent: agents.KindTopicGeneration})
	for _, u := range d.Units {
		if u.Agent == agents.KindResearch || (!hasResearch && len(u.DependsOn) == 0) {
			u.DependsOn = append([]string{name}, u.DependsOn...)
		}
		units = append(units, u)
	}
	d.Units = units
	return d
}

// Build constructs the pipeline's units from reg.
//
// Agents that consume another stage's output find it through the first unit
// of the producing kind, so stages may be renamed freely.
func (d Definition) Build(reg *agents.Registry) (orchestrator.Pipeline, error) {
	sources := make(map[string]string, len(d.Units))
	for _, u := range d.Units {
		if _, ok := sources[u.Agent]; !ok {
			sources[u.Agent] = u.Name
		}
	}

	units := make([]domain.Unit, 0, len(d.Units))
	deps := make(map[string][]string, len(d.Units))
	for _, u := range d.Units {
		unit, err := reg.New(u.Agent, u.Name, u.MaxRetries, sources)
		if err != nil {
			return orchestrator.Pipeline{}, fmt.Errorf("pipeline definition: %w", err)
		}
		units = append(units, unit)
		if len(u.DependsOn) > 0 {
			deps[u.Name] = u.DependsOn
		}
	}

	return orchestrator.Pipeline{
		Units:        units,
		Dependencies: deps,
		MaxRetries:   d.MaxRetries,
	}, nil
}
