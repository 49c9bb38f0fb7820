package resolve

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed overrides.yaml
var defaultOverridesYAML []byte

// ManualOverride pins a program to an intervention ahead of the automatic cascade.
type ManualOverride struct {
	ProgramID          string  `yaml:"program_id" json:"program_id"`
	AlmaInterventionID string  `yaml:"alma_intervention_id" json:"alma_intervention_id"`
	Confidence         float64 `yaml:"confidence" json:"confidence"`
	Reason             string  `yaml:"reason" json:"reason"`
}

type overrideFile struct {
	Overrides []ManualOverride `yaml:"overrides"`
}

// OverrideRegistry is an immutable lookup of manual overrides by program id.
type OverrideRegistry struct {
	byProgram map[string]ManualOverride
}

// NewOverrideRegistry indexes overrides. The first entry for a program wins.
func NewOverrideRegistry(overrides []ManualOverride) *OverrideRegistry {
	r := &OverrideRegistry{byProgram: make(map[string]ManualOverride, len(overrides))}
	for _, o := range overrides {
		if _, dup := r.byProgram[o.ProgramID]; !dup {
			r.byProgram[o.ProgramID] = o
		}
	}
	return r
}

// Lookup returns the override for a program, if any.
func (r *OverrideRegistry) Lookup(programID string) (ManualOverride, bool) {
	if r == nil {
		return ManualOverride{}, false
	}
	o, ok := r.byProgram[programID]
	return o, ok
}

// Len returns the number of registered overrides.
func (r *OverrideRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byProgram)
}

// LoadOverrides reads overrides from path, or the built-in list when path is empty.
func LoadOverrides(path string) (*OverrideRegistry, error) {
	data := defaultOverridesYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "resolve: read overrides %s", path)
		}
		data = b
	}
	return ParseOverrides(data)
}

// ParseOverrides decodes and validates an overrides document.
func ParseOverrides(data []byte) (*OverrideRegistry, error) {
	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "resolve: parse overrides")
	}

	for i, o := range f.Overrides {
		if o.ProgramID == "" || o.AlmaInterventionID == "" {
			return nil, eris.Errorf("resolve: override %d: program_id and alma_intervention_id are required", i)
		}
		if o.Confidence <= 0 || o.Confidence > 1 {
			return nil, eris.Errorf("resolve: override %d: confidence %v out of range", i, o.Confidence)
		}
		if o.Reason == "" {
			return nil, eris.Errorf("resolve: override %d: reason is required", i)
		}
	}

	return NewOverrideRegistry(f.Overrides), nil
}
