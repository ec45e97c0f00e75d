package invoke

import (
	"context"
	"fmt"

	"github.com/abanklabs/crewflow/internal/model"
	"github.com/abanklabs/crewflow/internal/tools"
	"github.com/abanklabs/crewflow/internal/workflow"
)

// StaticInvoker executes stages without a language model: it runs every
// tool registered for the stage's agent role and composes their outputs
// into the stage payload. Deterministic, so workflows exercise the full
// contract (ordering, gates, context passing) in development and tests.
type StaticInvoker struct{}

// NewStaticInvoker creates a tool-stub invoker.
func NewStaticInvoker() *StaticInvoker {
	return &StaticInvoker{}
}

// Invoke runs the role's tools and returns their combined output.
func (s *StaticInvoker) Invoke(ctx context.Context, stage model.StageDescriptor, contextSnapshot map[string]map[string]any) (workflow.StageOutput, error) {
	roleTools := tools.ForRole(stage.AgentRole)
	if len(roleTools) == 0 {
		return nil, workflow.Permanent(fmt.Errorf("invoke: no tools registered for role %q", stage.AgentRole))
	}

	args := toolArgs(contextSnapshot)
	results := make(map[string]any, len(roleTools))
	for _, tool := range roleTools {
		out, err := tool.Run(ctx, args)
		if err != nil {
			return nil, workflow.Permanent(fmt.Errorf("invoke: stage %s: %w", stage.Name, err))
		}
		results[tool.Name()] = out
	}

	return workflow.StageOutput{
		"agent_role": string(stage.AgentRole),
		"summary":    fmt.Sprintf("%s completed by %s", stage.Name, stage.AgentRole),
		"tools":      results,
	}, nil
}

// toolArgs lifts scalar values from the initial input so tools can pick up
// the campaign brief, product name, and similar parameters.
func toolArgs(contextSnapshot map[string]map[string]any) map[string]any {
	args := map[string]any{}
	for k, v := range contextSnapshot[model.ContextKeyInput] {
		args[k] = v
	}
	return args
}
