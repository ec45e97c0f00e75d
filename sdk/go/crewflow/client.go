package crewflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Crewflow server (e.g. "http://localhost:8080").
	BaseURL string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Crewflow workflow engine API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("crewflow: BaseURL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
	}, nil
}

// Workflows returns the server's workflow catalog.
func (c *Client) Workflows(ctx context.Context) ([]Workflow, error) {
	var resp struct {
		Workflows []Workflow `json:"workflows"`
	}
	if err := c.get(ctx, "/v1/workflows", &resp); err != nil {
		return nil, err
	}
	return resp.Workflows, nil
}

// StartRun starts a run of the named workflow with the given initial input.
// The returned run has already performed its first stage step; if the first
// stage is gated the run comes back awaiting approval.
func (c *Client) StartRun(ctx context.Context, workflow string, input map[string]any) (*Run, error) {
	body := map[string]any{"input": input}
	var run Run
	if err := c.post(ctx, "/v1/workflows/"+url.PathEscape(workflow)+"/runs", body, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun retrieves the full state of one run.
func (c *Client) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	var run Run
	if err := c.get(ctx, "/v1/runs/"+runID.String(), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns run summaries, most recent first. A non-positive limit
// uses the server default.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	path := "/v1/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Runs []RunSummary `json:"runs"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// AdvanceRun performs one stage step on a running run. Stage failures are
// reflected on the returned run's status and failure reason, not the error.
func (c *Client) AdvanceRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	var run Run
	if err := c.post(ctx, "/v1/runs/"+runID.String()+"/advance", struct{}{}, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// SubmitDecision resolves an approval gate on a suspended run. An approving
// or modifying decision drives the run forward until the next gate or a
// terminal state before returning.
func (c *Client) SubmitDecision(ctx context.Context, runID uuid.UUID, decision Decision) (*Run, error) {
	var run Run
	if err := c.post(ctx, "/v1/runs/"+runID.String()+"/approval", decision, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// CancelRun cancels a running or suspended run.
func (c *Client) CancelRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	var run Run
	if err := c.post(ctx, "/v1/runs/"+runID.String()+"/cancel", struct{}{}, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// RunEvents returns a run's event log in occurrence order. Requires the
// server to be running with persistent storage.
func (c *Client) RunEvents(ctx context.Context, runID uuid.UUID) ([]Event, error) {
	var resp struct {
		Events []Event `json:"events"`
	}
	if err := c.get(ctx, "/v1/runs/"+runID.String()+"/events", &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// Health reports the server's liveness status.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var status map[string]any
	if err := c.get(ctx, "/healthz", &status); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("crewflow: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("crewflow: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("crewflow: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("crewflow: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("crewflow: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("crewflow: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return json.Unmarshal(bodyBytes, dest)
	}
	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
