package workflow

import (
	"context"

	"github.com/abanklabs/crewflow/internal/model"
)

// StageOutput is the opaque structured payload a stage produces.
type StageOutput = map[string]any

// Invoker is the external collaborator that performs a stage's work: a
// language-model call, a tool call, or a real integration. The runner hands
// it a read-only snapshot of the accumulated context, never the live store.
//
// Failures must be classified: wrap retryable faults with Transient and
// non-retryable ones with Permanent. Unclassified errors are treated as
// permanent. The runner owns the retry/backoff policy.
type Invoker interface {
	Invoke(ctx context.Context, stage model.StageDescriptor, contextSnapshot map[string]map[string]any) (StageOutput, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, stage model.StageDescriptor, contextSnapshot map[string]map[string]any) (StageOutput, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, stage model.StageDescriptor, contextSnapshot map[string]map[string]any) (StageOutput, error) {
	return f(ctx, stage, contextSnapshot)
}
