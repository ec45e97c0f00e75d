package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abanklabs/crewflow/internal/model"
	"github.com/abanklabs/crewflow/internal/workflow"
)

// OpenAIInvoker executes stages through the OpenAI chat completions API.
// The model is asked to answer with a single JSON object, which becomes the
// stage output.
type OpenAIInvoker struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIInvoker creates an invoker backed by the OpenAI API.
func NewOpenAIInvoker(apiKey, chatModel string) *OpenAIInvoker {
	return &OpenAIInvoker{
		apiKey: apiKey,
		model:  chatModel,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
}

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Temperature    float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Invoke performs one chat completion for the stage. Rate limiting and
// server-side failures are classified transient so the runner retries them.
func (p *OpenAIInvoker) Invoke(ctx context.Context, stage model.StageDescriptor, contextSnapshot map[string]map[string]any) (workflow.StageOutput, error) {
	system, user, err := stagePrompt(stage, contextSnapshot)
	if err != nil {
		return nil, workflow.Permanent(err)
	}

	reqBody, err := json.Marshal(openAIChatRequest{
		Model: p.model,
		Messages: []openAIMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
		Temperature:    0.2,
	})
	if err != nil {
		return nil, workflow.Permanent(fmt.Errorf("invoke: marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, workflow.Permanent(fmt.Errorf("invoke: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// Network errors are assumed recoverable.
		return nil, workflow.Transient(fmt.Errorf("invoke: send request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, workflow.Transient(fmt.Errorf("invoke: read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, workflow.Transient(fmt.Errorf("invoke: openai status %d: %s", resp.StatusCode, string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, workflow.Permanent(fmt.Errorf("invoke: openai status %d: %s", resp.StatusCode, string(body)))
	}

	var result openAIChatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, workflow.Permanent(fmt.Errorf("invoke: unmarshal response: %w", err))
	}
	if result.Error != nil {
		return nil, workflow.Permanent(fmt.Errorf("invoke: openai error: %s: %s", result.Error.Type, result.Error.Message))
	}
	if len(result.Choices) == 0 {
		return nil, workflow.Permanent(fmt.Errorf("invoke: openai returned no choices"))
	}

	return parseStageOutput(result.Choices[0].Message.Content)
}

// parseStageOutput decodes the model's JSON answer into a stage payload.
// A non-object answer is wrapped under a "response" key rather than
// rejected.
func parseStageOutput(content string) (workflow.StageOutput, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return workflow.StageOutput{"response": content}, nil
	}
	return out, nil
}

// stagePrompt renders the system and user messages for a stage invocation.
func stagePrompt(stage model.StageDescriptor, contextSnapshot map[string]map[string]any) (system, user string, err error) {
	ctxJSON, err := json.MarshalIndent(contextSnapshot, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("invoke: marshal context: %w", err)
	}

	system = fmt.Sprintf(
		"You are the %s agent of a bank marketing team. Perform the stage %q: %s. Respond with a single JSON object containing your results.",
		stage.AgentRole, stage.Name, stage.Description,
	)
	user = fmt.Sprintf("Workflow context so far:\n%s", ctxJSON)
	return system, user, nil
}
