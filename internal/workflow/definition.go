package workflow

import (
	"fmt"

	"github.com/abanklabs/crewflow/internal/model"
)

// Definition declares an executable workflow: an ordered stage sequence plus
// the metadata needed to present it. Immutable after loading; runs copy the
// stage slice at creation and never re-read the definition.
type Definition struct {
	Name        string                  `json:"name" yaml:"name"`
	Description string                  `json:"description,omitempty" yaml:"description,omitempty"`
	Stages      []model.StageDescriptor `json:"stages" yaml:"stages"`
}

// Clone returns a deep copy of the definition.
func (d Definition) Clone() Definition {
	out := Definition{Name: d.Name, Description: d.Description}
	if len(d.Stages) > 0 {
		out.Stages = make([]model.StageDescriptor, len(d.Stages))
		for i, s := range d.Stages {
			out.Stages[i] = s.Clone()
		}
	}
	return out
}

// Validate ensures the definition is self-consistent: unique stage names,
// non-empty roles, and required context keys that an upstream stage (or the
// reserved input key) actually produces. Stages execute strictly in declared
// order, so a forward or unknown reference can never be satisfied at run
// time and is rejected here, at load time.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow: definition name is required")
	}
	if len(d.Stages) == 0 {
		return fmt.Errorf("workflow %s: at least one stage is required", d.Name)
	}

	produced := map[string]bool{model.ContextKeyInput: true}
	for idx, stage := range d.Stages {
		if stage.Name == "" {
			return fmt.Errorf("workflow %s stage[%d]: name is required", d.Name, idx)
		}
		if stage.Name == model.ContextKeyInput {
			return fmt.Errorf("workflow %s stage[%d]: %q is a reserved name", d.Name, idx, model.ContextKeyInput)
		}
		if stage.AgentRole == "" {
			return fmt.Errorf("workflow %s stage %s: agent_role is required", d.Name, stage.Name)
		}
		if produced[stage.Name] {
			return fmt.Errorf("workflow %s: duplicate stage name %s", d.Name, stage.Name)
		}
		if stage.Timeout < 0 {
			return fmt.Errorf("workflow %s stage %s: timeout must not be negative", d.Name, stage.Name)
		}
		for _, key := range stage.RequiredContext {
			if !produced[key] {
				return fmt.Errorf("workflow %s stage %s: required context key %q is not produced by any earlier stage", d.Name, stage.Name, key)
			}
		}
		produced[stage.Name] = true
	}
	return nil
}
