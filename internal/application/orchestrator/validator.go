package orchestrator

import (
	"github.com/blackstreet-ai/animated-invention/internal/domain"
)

// Validator validates pipeline structures before a run is laid out.
type Validator struct{}

// NewValidator creates a new pipeline validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the units of a pipeline. Dependency references and cycles
// are checked by BuildLayers.
func (v *Validator) Validate(p Pipeline) error {
	if len(p.Units) == 0 {
		return domain.Configf("", "pipeline must have at least one unit")
	}
	if p.MaxRetries < 0 {
		return domain.Configf("", "max retries must be >= 1, got %d", p.MaxRetries)
	}

	names := make(map[string]bool, len(p.Units))
	for i, u := range p.Units {
		if u == nil {
			return domain.Configf("", "unit at position %d is nil", i)
		}
		if err := v.validateUnit(u); err != nil {
			return err
		}
		if names[u.Name()] {
			return domain.Configf(u.Name(), "duplicate unit name")
		}
		names[u.Name()] = true
	}

	return nil
}

// validateUnit validates a single unit
func (v *Validator) validateUnit(u domain.Unit) error {
	if u.Name() == "" {
		return domain.Configf("", "unit name is required")
	}
	if u.MaxRetries() < 0 {
		return domain.Configf(u.Name(), "max retries override must be >= 0, got %d", u.MaxRetries())
	}
	return nil
}
