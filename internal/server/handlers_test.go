package server_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abanklabs/crewflow/internal/model"
	"github.com/abanklabs/crewflow/internal/ratelimit"
	"github.com/abanklabs/crewflow/internal/server"
	"github.com/abanklabs/crewflow/internal/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testDefinitions() map[string]workflow.Definition {
	return map[string]workflow.Definition{
		"product_launch": {
			Name:        "product_launch",
			Description: "Full campaign development for a bank product launch.",
			Stages: []model.StageDescriptor{
				{Name: "market_analysis", AgentRole: model.RoleMarketIntelligence, RequiredContext: []string{model.ContextKeyInput}},
				{Name: "execution_plan", AgentRole: model.RoleCampaignExecution, RequiredContext: []string{"market_analysis"}, RequiresApproval: true},
				{Name: "performance_monitoring", AgentRole: model.RolePerformanceAnalytics, RequiredContext: []string{"execution_plan"}},
			},
		},
	}
}

func newTestServer(t *testing.T, limiter ratelimit.Limiter) *server.Server {
	t.Helper()

	invoker := workflow.InvokerFunc(func(_ context.Context, stage model.StageDescriptor, _ map[string]map[string]any) (workflow.StageOutput, error) {
		return workflow.StageOutput{"done": stage.Name}, nil
	})
	runner, err := workflow.NewRunner(workflow.RunnerConfig{
		Invoker: invoker,
		Logger:  testLogger(),
		Retry:   workflow.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond},
	})
	require.NoError(t, err)

	return server.New(server.ServerConfig{
		Runner:      runner,
		Definitions: testDefinitions(),
		Logger:      testLogger(),
		Limiter:     limiter,
		Version:     "test",
	})
}

func doJSON(t *testing.T, srv *server.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeRun(t *testing.T, rec *httptest.ResponseRecorder) model.WorkflowRun {
	t.Helper()
	var envelope struct {
		Data model.WorkflowRun `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.ErrorDetail {
	t.Helper()
	var envelope model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Error
}

func TestListWorkflows(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest("GET", "/v1/workflows", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var envelope struct {
		Data struct {
			Workflows []struct {
				Name   string                  `json:"name"`
				Stages []model.StageDescriptor `json:"stages"`
			} `json:"workflows"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data.Workflows, 1)
	assert.Equal(t, "product_launch", envelope.Data.Workflows[0].Name)
	assert.Len(t, envelope.Data.Workflows[0].Stages, 3)
}

func TestStartRun(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, "POST", "/v1/workflows/product_launch/runs", `{"input":{"product":"savings plus"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	run := decodeRun(t, rec)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.Equal(t, 1, run.CurrentStage)
	assert.Equal(t, "savings plus", run.Context[model.ContextKeyInput]["product"])
}

func TestStartRunUnknownWorkflow(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv, "POST", "/v1/workflows/nope/runs", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, model.ErrCodeNotFound, decodeError(t, rec).Code)
}

func TestStartRunRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv, "POST", "/v1/workflows/product_launch/runs", `{"input": [1,2]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrCodeInvalidInput, decodeError(t, rec).Code)

	rec = doJSON(t, srv, "POST", "/v1/workflows/product_launch/runs", `{"unknown_field": true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFullRunLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, "POST", "/v1/workflows/product_launch/runs", `{"input":{"product":"x"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	run := decodeRun(t, rec)
	id := run.ID.String()

	// Second stage is gated: advancing suspends the run.
	rec = doJSON(t, srv, "POST", "/v1/runs/"+id+"/advance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	run = decodeRun(t, rec)
	require.Equal(t, model.RunStatusAwaitingApproval, run.Status)
	require.NotNil(t, run.PendingApproval)

	// Advancing a suspended run is a conflict.
	rec = doJSON(t, srv, "POST", "/v1/runs/"+id+"/advance", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, model.ErrCodeInvalidState, decodeError(t, rec).Code)

	// Approval drives the run to completion.
	rec = doJSON(t, srv, "POST", "/v1/runs/"+id+"/approval", `{"decision":"approved","decided_by":"ops@abank"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	run = decodeRun(t, rec)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Nil(t, run.PendingApproval)

	// A completed run is still retrievable.
	req := httptest.NewRequest("GET", "/v1/runs/"+id, nil)
	getRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(getRec, req)
	require.Equal(t, http.StatusOK, getRec.Code)
	assert.Equal(t, model.RunStatusCompleted, decodeRun(t, getRec).Status)
}

func TestResolveApprovalRejection(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, "POST", "/v1/workflows/product_launch/runs", "")
	id := decodeRun(t, rec).ID.String()
	doJSON(t, srv, "POST", "/v1/runs/"+id+"/advance", "")

	rec = doJSON(t, srv, "POST", "/v1/runs/"+id+"/approval", `{"decision":"rejected","decided_by":"compliance@abank"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	run := decodeRun(t, rec)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, model.ReasonApprovalDenied, run.FailureReason)
}

func TestResolveApprovalValidatesDecision(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, "POST", "/v1/workflows/product_launch/runs", "")
	id := decodeRun(t, rec).ID.String()
	doJSON(t, srv, "POST", "/v1/runs/"+id+"/advance", "")

	// Modified without a replacement payload is a bad request.
	rec = doJSON(t, srv, "POST", "/v1/runs/"+id+"/approval", `{"decision":"modified"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown decision value is a bad request.
	rec = doJSON(t, srv, "POST", "/v1/runs/"+id+"/approval", `{"decision":"escalated"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveApprovalOnRunningRunConflicts(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, "POST", "/v1/workflows/product_launch/runs", "")
	id := decodeRun(t, rec).ID.String()

	rec = doJSON(t, srv, "POST", "/v1/runs/"+id+"/approval", `{"decision":"approved"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelRun(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, "POST", "/v1/workflows/product_launch/runs", "")
	id := decodeRun(t, rec).ID.String()

	rec = doJSON(t, srv, "POST", "/v1/runs/"+id+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.RunStatusCancelled, decodeRun(t, rec).Status)

	rec = doJSON(t, srv, "POST", "/v1/runs/"+id+"/cancel", "")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunNotFound(t *testing.T) {
	srv := newTestServer(t, nil)
	id := uuid.New().String()

	for _, path := range []string{
		"/v1/runs/" + id,
		"/v1/runs/" + id + "/advance",
		"/v1/runs/" + id + "/cancel",
	} {
		rec := doJSON(t, srv, methodFor(path), path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	rec := doJSON(t, srv, "GET", "/v1/runs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func methodFor(path string) string {
	if strings.HasSuffix(path, "/advance") || strings.HasSuffix(path, "/cancel") {
		return "POST"
	}
	return "GET"
}

func TestListRuns(t *testing.T) {
	srv := newTestServer(t, nil)

	doJSON(t, srv, "POST", "/v1/workflows/product_launch/runs", "")
	doJSON(t, srv, "POST", "/v1/workflows/product_launch/runs", "")

	req := httptest.NewRequest("GET", "/v1/runs", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data struct {
			Runs []model.RunSummary `json:"runs"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data.Runs, 2)

	// Out-of-range limit is rejected.
	req = httptest.NewRequest("GET", "/v1/runs?limit=0", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest("GET", "/v1/runs?limit=501", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventsEndpointRequiresDatabase(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, "POST", "/v1/workflows/product_launch/runs", "")
	id := decodeRun(t, rec).ID.String()

	req := httptest.NewRequest("GET", "/v1/runs/"+id+"/events", nil)
	getRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(getRec, req)
	assert.Equal(t, http.StatusNotFound, getRec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "ok", envelope.Data["status"])
	assert.Equal(t, "test", envelope.Data["version"])
}

func TestRateLimitedRequestsGet429(t *testing.T) {
	// 1 token/sec with burst 2: the third rapid request is rejected.
	limiter := ratelimit.NewMemoryLimiter(1, 2)
	defer func() { _ = limiter.Close() }()
	srv := newTestServer(t, limiter)

	var last *httptest.ResponseRecorder
	for range 3 {
		req := httptest.NewRequest("GET", "/v1/workflows", nil)
		req.RemoteAddr = "203.0.113.7:4444"
		last = httptest.NewRecorder()
		srv.Handler().ServeHTTP(last, req)
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "1", last.Header().Get("Retry-After"))
	assert.Equal(t, model.ErrCodeRateLimited, decodeError(t, last).Code)

	// Health is never rate limited.
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.RemoteAddr = "203.0.113.7:4444"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
