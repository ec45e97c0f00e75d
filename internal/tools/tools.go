// Package tools provides the agent tool surface: named capabilities that
// stage invocations can call. The bundled implementations return
// deterministic stub data so workflows can run end to end without live
// marketing integrations.
package tools

import (
	"context"
	"fmt"
)

// Tool is a single capability exposed to an agent role.
type Tool interface {
	Name() string
	Description() string
	Run(ctx context.Context, args map[string]any) (map[string]any, error)
}

// funcTool adapts a plain function into a Tool.
type funcTool struct {
	name        string
	description string
	run         func(ctx context.Context, args map[string]any) (map[string]any, error)
}

func (t *funcTool) Name() string        { return t.name }
func (t *funcTool) Description() string { return t.description }

func (t *funcTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}
	out, err := t.run(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("tools: %s: %w", t.name, err)
	}
	return out, nil
}

func newTool(name, description string, run func(ctx context.Context, args map[string]any) (map[string]any, error)) Tool {
	return &funcTool{name: name, description: description, run: run}
}

// stringArg reads a string argument, returning fallback when absent or not
// a string.
func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// floatArg reads a numeric argument, accepting the types JSON decoding
// produces.
func floatArg(args map[string]any, key string, fallback float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}
