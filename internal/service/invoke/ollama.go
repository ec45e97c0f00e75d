package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/abanklabs/crewflow/internal/model"
	"github.com/abanklabs/crewflow/internal/workflow"
)

// OllamaInvoker executes stages through a local Ollama server. Useful when
// campaign data must not leave the bank's network.
type OllamaInvoker struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaInvoker creates an invoker that calls Ollama's chat API.
func NewOllamaInvoker(baseURL, chatModel string) *OllamaInvoker {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaInvoker{
		baseURL: baseURL,
		model:   chatModel,
		// No client timeout: the runner bounds each attempt with the
		// stage's own deadline.
		httpClient: &http.Client{},
	}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Format   string          `json:"format,omitempty"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
}

// Invoke performs one non-streaming chat call for the stage.
func (p *OllamaInvoker) Invoke(ctx context.Context, stage model.StageDescriptor, contextSnapshot map[string]map[string]any) (workflow.StageOutput, error) {
	system, user, err := stagePrompt(stage, contextSnapshot)
	if err != nil {
		return nil, workflow.Permanent(err)
	}

	reqBody, err := json.Marshal(ollamaChatRequest{
		Model: p.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return nil, workflow.Permanent(fmt.Errorf("invoke: marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		return nil, workflow.Permanent(fmt.Errorf("invoke: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, workflow.Transient(fmt.Errorf("invoke: ollama send request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("invoke: ollama status %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode >= 500 {
			return nil, workflow.Transient(err)
		}
		return nil, workflow.Permanent(err)
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, workflow.Permanent(fmt.Errorf("invoke: ollama decode response: %w", err))
	}
	if result.Message.Content == "" {
		return nil, workflow.Permanent(fmt.Errorf("invoke: ollama returned empty message"))
	}

	return parseStageOutput(result.Message.Content)
}
