package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/abanklabs/crewflow/internal/model"
)

func (s *Server) registerTools() {
	// crewflow_start: start a workflow run.
	s.mcpServer.AddTool(
		mcplib.NewTool("crewflow_start",
			mcplib.WithDescription(`Start a run of a named marketing workflow.

The run executes stages in order, pausing at human approval gates. The
result includes the run ID, current status, and (if suspended) the pending
approval request.

Use crewflow_status to inspect progress and crewflow_approve to resolve
approval gates.`),
			mcplib.WithString("workflow",
				mcplib.Description("Workflow name, e.g. product_launch, real_time_response, personalized_journey"),
				mcplib.Required(),
			),
			mcplib.WithString("input",
				mcplib.Description("Optional JSON object with the initial input (campaign brief, product name, audience)"),
			),
		),
		s.handleStart,
	)

	// crewflow_status: inspect a run.
	s.mcpServer.AddTool(
		mcplib.NewTool("crewflow_status",
			mcplib.WithDescription("Get the full state of a workflow run: status, current stage, accumulated context, and any pending approval."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("run_id", mcplib.Description("Run UUID"), mcplib.Required()),
		),
		s.handleStatus,
	)

	// crewflow_advance: perform one stage step.
	s.mcpServer.AddTool(
		mcplib.NewTool("crewflow_advance",
			mcplib.WithDescription("Advance a running workflow by one stage. Fails if the run is suspended on an approval gate or already terminal."),
			mcplib.WithString("run_id", mcplib.Description("Run UUID"), mcplib.Required()),
		),
		s.handleAdvance,
	)

	// crewflow_approve: resolve an approval gate.
	s.mcpServer.AddTool(
		mcplib.NewTool("crewflow_approve",
			mcplib.WithDescription(`Resolve a pending approval gate on a suspended run.

Decisions: "approved" executes the gated stage and continues, "rejected"
fails the run, "modified" writes the supplied replacement output instead of
invoking the agent, then continues.`),
			mcplib.WithString("run_id", mcplib.Description("Run UUID"), mcplib.Required()),
			mcplib.WithString("decision",
				mcplib.Description("approved, rejected, or modified"),
				mcplib.Required(),
			),
			mcplib.WithString("decided_by", mcplib.Description("Identity of the approver")),
			mcplib.WithString("replacement",
				mcplib.Description("JSON object to use as the stage output (required for modified)"),
			),
		),
		s.handleApprove,
	)

	// crewflow_cancel: cancel a run.
	s.mcpServer.AddTool(
		mcplib.NewTool("crewflow_cancel",
			mcplib.WithDescription("Cancel a running or suspended workflow run."),
			mcplib.WithString("run_id", mcplib.Description("Run UUID"), mcplib.Required()),
		),
		s.handleCancel,
	)

	// crewflow_runs: list recent runs.
	s.mcpServer.AddTool(
		mcplib.NewTool("crewflow_runs",
			mcplib.WithDescription("List recent workflow runs, most recent first."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum runs to return"),
				mcplib.Min(1),
				mcplib.Max(500),
				mcplib.DefaultNumber(20),
			),
		),
		s.handleRuns,
	)
}

func (s *Server) handleStart(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	name := request.GetString("workflow", "")
	if name == "" {
		return errorResult("workflow is required"), nil
	}
	def, ok := s.definitions[name]
	if !ok {
		return errorResult(fmt.Sprintf("unknown workflow: %s", name)), nil
	}

	var input map[string]any
	if raw := request.GetString("input", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			return errorResult(fmt.Sprintf("input must be a JSON object: %v", err)), nil
		}
	}

	run, err := s.runner.Start(ctx, def, input)
	if err != nil && run.ID == uuid.Nil {
		return errorResult(fmt.Sprintf("start failed: %v", err)), nil
	}
	return jsonResult(run), nil
}

func (s *Server) handleStatus(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID, result := s.parseRunID(request)
	if result != nil {
		return result, nil
	}
	run, err := s.runner.Get(ctx, runID)
	if err != nil {
		return errorResult(fmt.Sprintf("get run: %v", err)), nil
	}
	return jsonResult(run), nil
}

func (s *Server) handleAdvance(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID, result := s.parseRunID(request)
	if result != nil {
		return result, nil
	}
	run, err := s.runner.Advance(ctx, runID)
	if err != nil && run.ID == uuid.Nil {
		return errorResult(fmt.Sprintf("advance: %v", err)), nil
	}
	return jsonResult(run), nil
}

func (s *Server) handleApprove(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID, result := s.parseRunID(request)
	if result != nil {
		return result, nil
	}

	decision := model.ApprovalDecision{
		Status:    model.ApprovalStatus(request.GetString("decision", "")),
		DecidedBy: request.GetString("decided_by", ""),
	}
	if raw := request.GetString("replacement", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &decision.Replacement); err != nil {
			return errorResult(fmt.Sprintf("replacement must be a JSON object: %v", err)), nil
		}
	}
	if err := decision.Validate(); err != nil {
		return errorResult(err.Error()), nil
	}

	run, err := s.runner.ResolveApproval(ctx, runID, decision)
	if err != nil && run.ID == uuid.Nil {
		return errorResult(fmt.Sprintf("resolve approval: %v", err)), nil
	}
	return jsonResult(run), nil
}

func (s *Server) handleCancel(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID, result := s.parseRunID(request)
	if result != nil {
		return result, nil
	}
	run, err := s.runner.Cancel(ctx, runID)
	if err != nil {
		return errorResult(fmt.Sprintf("cancel: %v", err)), nil
	}
	return jsonResult(run), nil
}

func (s *Server) handleRuns(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	limit := request.GetInt("limit", 20)
	runs, err := s.runner.List(ctx, limit)
	if err != nil {
		return errorResult(fmt.Sprintf("list runs: %v", err)), nil
	}
	summaries := make([]model.RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, run.Summary())
	}
	return jsonResult(map[string]any{"runs": summaries}), nil
}

func (s *Server) parseRunID(request mcplib.CallToolRequest) (uuid.UUID, *mcplib.CallToolResult) {
	raw := request.GetString("run_id", "")
	if raw == "" {
		return uuid.Nil, errorResult("run_id is required")
	}
	runID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errorResult("run_id must be a UUID")
	}
	return runID, nil
}
