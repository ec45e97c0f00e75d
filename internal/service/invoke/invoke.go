// Package invoke provides agent invoker implementations for stage
// execution.
//
// An invoker turns a stage descriptor plus the accumulated context into the
// stage's output payload. Implementations cover a local static agent (tool
// stubs, no model calls), an Ollama-backed agent, and an OpenAI-backed
// agent. The selection mirrors deployment reality: hosted API when a key is
// present, local model when an Ollama URL is set, static otherwise.
package invoke

import (
	"log/slog"

	"github.com/abanklabs/crewflow/internal/workflow"
)

// Config selects and configures an invoker provider.
type Config struct {
	// OpenAIAPIKey enables the OpenAI provider when non-empty.
	OpenAIAPIKey string
	// OpenAIModel is the chat model, e.g. "gpt-4o-mini".
	OpenAIModel string
	// OllamaURL enables the Ollama provider when non-empty and no OpenAI
	// key is set.
	OllamaURL string
	// OllamaModel is the local chat model, e.g. "llama3.1".
	OllamaModel string
}

// New returns the invoker for the given configuration.
func New(cfg Config, logger *slog.Logger) workflow.Invoker {
	switch {
	case cfg.OpenAIAPIKey != "":
		model := cfg.OpenAIModel
		if model == "" {
			model = "gpt-4o-mini"
		}
		logger.Info("using openai invoker", "model", model)
		return NewOpenAIInvoker(cfg.OpenAIAPIKey, model)
	case cfg.OllamaURL != "":
		model := cfg.OllamaModel
		if model == "" {
			model = "llama3.1"
		}
		logger.Info("using ollama invoker", "url", cfg.OllamaURL, "model", model)
		return NewOllamaInvoker(cfg.OllamaURL, model)
	default:
		logger.Info("using static invoker")
		return NewStaticInvoker()
	}
}
