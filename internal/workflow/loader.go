package workflow

import (
	"bytes"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abanklabs/crewflow/internal/model"
)

// definitionDoc is the YAML wire shape of a Definition. Timeouts are written
// as duration strings ("90s", "2m"), which yaml.v3 cannot decode into
// time.Duration directly, so the doc is converted after decoding.
type definitionDoc struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Stages      []stageDoc `yaml:"stages"`
}

type stageDoc struct {
	Name             string   `yaml:"name"`
	AgentRole        string   `yaml:"agent_role"`
	Description      string   `yaml:"description"`
	RequiredContext  []string `yaml:"required_context"`
	RequiresApproval bool     `yaml:"requires_approval"`
	Timeout          string   `yaml:"timeout"`
}

// ParseDefinition decodes and validates a workflow definition from YAML bytes.
func ParseDefinition(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("workflow: definition payload is empty")
	}
	var doc definitionDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Definition{}, fmt.Errorf("workflow: decode definition: %w", err)
	}

	def := Definition{
		Name:        doc.Name,
		Description: doc.Description,
		Stages:      make([]model.StageDescriptor, len(doc.Stages)),
	}
	for i, s := range doc.Stages {
		stage := model.StageDescriptor{
			Name:             s.Name,
			AgentRole:        model.AgentRole(s.AgentRole),
			Description:      s.Description,
			RequiredContext:  s.RequiredContext,
			RequiresApproval: s.RequiresApproval,
		}
		if s.Timeout != "" {
			timeout, err := time.ParseDuration(s.Timeout)
			if err != nil {
				return Definition{}, fmt.Errorf("workflow %s stage %s: parse timeout: %w", doc.Name, s.Name, err)
			}
			stage.Timeout = timeout
		}
		def.Stages[i] = stage
	}

	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadDefinitions reads every *.yaml definition under fsys and returns them
// keyed by workflow name. Used for both the embedded defaults and an
// operator-supplied directory.
func LoadDefinitions(fsys fs.FS) (map[string]Definition, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("workflow: read definitions dir: %w", err)
	}

	defs := make(map[string]Definition)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("workflow: read %s: %w", entry.Name(), err)
		}
		def, err := ParseDefinition(data)
		if err != nil {
			return nil, fmt.Errorf("workflow: %s: %w", entry.Name(), err)
		}
		if _, exists := defs[def.Name]; exists {
			return nil, fmt.Errorf("workflow: duplicate definition name %s (from %s)", def.Name, entry.Name())
		}
		defs[def.Name] = def
	}
	return defs, nil
}

// MergeDefinitions overlays extra onto base. Definitions in extra replace
// same-named embedded defaults, so operators can override shipped workflows.
func MergeDefinitions(base, extra map[string]Definition) map[string]Definition {
	out := make(map[string]Definition, len(base)+len(extra))
	for name, def := range base {
		out[name] = def
	}
	for name, def := range extra {
		out[name] = def
	}
	return out
}
