package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abanklabs/crewflow/internal/model"
)

// scriptedInvoker returns canned outputs per stage and can be programmed to
// fail a stage a number of times before succeeding.
type scriptedInvoker struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string][]error
	outputs  map[string]map[string]any
}

func newScriptedInvoker() *scriptedInvoker {
	return &scriptedInvoker{
		calls:    make(map[string]int),
		failures: make(map[string][]error),
		outputs:  make(map[string]map[string]any),
	}
}

func (s *scriptedInvoker) failWith(stage string, errs ...error) {
	s.failures[stage] = errs
}

func (s *scriptedInvoker) Invoke(_ context.Context, stage model.StageDescriptor, _ map[string]map[string]any) (StageOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[stage.Name]++
	if pending := s.failures[stage.Name]; len(pending) > 0 {
		err := pending[0]
		s.failures[stage.Name] = pending[1:]
		return nil, err
	}
	if out, ok := s.outputs[stage.Name]; ok {
		return out, nil
	}
	return StageOutput{"done": stage.Name}, nil
}

func (s *scriptedInvoker) callCount(stage string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[stage]
}

// captureSink records every emitted event in order.
type captureSink struct {
	mu     sync.Mutex
	events []model.WorkflowEvent
}

func (c *captureSink) OnEvent(_ context.Context, event model.WorkflowEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) types() []model.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.EventType, len(c.events))
	for i, e := range c.events {
		out[i] = e.EventType
	}
	return out
}

func threeStageDef(gated string) Definition {
	stages := []model.StageDescriptor{
		{Name: "analysis", AgentRole: model.RoleMarketIntelligence, RequiredContext: []string{model.ContextKeyInput}},
		{Name: "strategy", AgentRole: model.RoleContentStrategy, RequiredContext: []string{"analysis"}},
		{Name: "deployment", AgentRole: model.RoleCampaignExecution, RequiredContext: []string{"strategy"}},
	}
	for i := range stages {
		if stages[i].Name == gated {
			stages[i].RequiresApproval = true
		}
	}
	return Definition{Name: "launch", Stages: stages}
}

func newTestRunner(t *testing.T, invoker Invoker, sink EventSink) *Runner {
	t.Helper()
	r, err := NewRunner(RunnerConfig{
		Invoker: invoker,
		Sink:    sink,
		Retry:   RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	})
	require.NoError(t, err)
	return r
}

func TestStartPerformsFirstStage(t *testing.T) {
	inv := newScriptedInvoker()
	r := newTestRunner(t, inv, nil)

	run, err := r.Start(context.Background(), threeStageDef(""), map[string]any{"product": "savings plus"})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.Equal(t, 1, run.CurrentStage)
	assert.Equal(t, 1, inv.callCount("analysis"))
	assert.Equal(t, map[string]any{"product": "savings plus"}, run.Context[model.ContextKeyInput])
	assert.Contains(t, run.Context, "analysis")
}

func TestRunExecutesStagesInOrderToCompletion(t *testing.T) {
	inv := newScriptedInvoker()
	sink := &captureSink{}
	r := newTestRunner(t, inv, sink)

	run, err := r.Start(context.Background(), threeStageDef(""), nil)
	require.NoError(t, err)

	for run.Status == model.RunStatusRunning {
		run, err = r.Advance(context.Background(), run.ID)
		require.NoError(t, err)
	}

	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.CurrentStage)
	require.NotNil(t, run.CompletedAt)

	// Each stage ran exactly once, in order, and its output landed under
	// its own key.
	for _, stage := range []string{"analysis", "strategy", "deployment"} {
		assert.Equal(t, 1, inv.callCount(stage), stage)
		assert.Equal(t, map[string]any{"done": stage}, run.Context[stage])
	}

	assert.Equal(t, []model.EventType{
		model.EventRunStarted,
		model.EventStageStarted, model.EventStageCompleted,
		model.EventStageStarted, model.EventStageCompleted,
		model.EventStageStarted, model.EventStageCompleted,
		model.EventRunCompleted,
	}, sink.types())
}

func TestAdvanceOnTerminalRunFails(t *testing.T) {
	inv := newScriptedInvoker()
	r := newTestRunner(t, inv, nil)

	run, err := r.Start(context.Background(), Definition{
		Name: "single",
		Stages: []model.StageDescriptor{
			{Name: "only", AgentRole: model.RoleMarketIntelligence},
		},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusCompleted, run.Status)

	_, err = r.Advance(context.Background(), run.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAdvanceUnknownRun(t *testing.T) {
	r := newTestRunner(t, newScriptedInvoker(), nil)
	_, err := r.Advance(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestMissingContextFailsRun(t *testing.T) {
	inv := newScriptedInvoker()
	r := newTestRunner(t, inv, nil)

	// A hydrated run can carry a stage graph whose requirement was never
	// produced (e.g. the definition changed between restarts).
	run := model.WorkflowRun{
		ID:       uuid.New(),
		Workflow: "stale",
		Status:   model.RunStatusRunning,
		Stages: []model.StageDescriptor{
			{Name: "done_already", AgentRole: model.RoleMarketIntelligence},
			{Name: "needs_gone_key", AgentRole: model.RoleContentStrategy, RequiredContext: []string{"vanished"}},
		},
		CurrentStage: 1,
		Context: map[string]map[string]any{
			model.ContextKeyInput: {},
			"done_already":        {"ok": true},
		},
		StartedAt: time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, r.Hydrate(run))

	got, err := r.Advance(context.Background(), run.ID)
	var missing *MissingContextError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "vanished", missing.Key)

	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, model.ReasonMissingContext, got.FailureReason)
	assert.Equal(t, "needs_gone_key", got.FailedStage)
	assert.Equal(t, 0, inv.callCount("needs_gone_key"))
}

func TestDuplicateKeyFailsRun(t *testing.T) {
	inv := newScriptedInvoker()
	r := newTestRunner(t, inv, nil)

	run := model.WorkflowRun{
		ID:       uuid.New(),
		Workflow: "collision",
		Status:   model.RunStatusRunning,
		Stages: []model.StageDescriptor{
			{Name: "first", AgentRole: model.RoleMarketIntelligence},
			{Name: "first_again", AgentRole: model.RoleContentStrategy},
		},
		CurrentStage: 1,
		Context: map[string]map[string]any{
			model.ContextKeyInput: {},
			"first":               {"ok": true},
			"first_again":         {"already": "here"},
		},
		StartedAt: time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, r.Hydrate(run))

	got, err := r.Advance(context.Background(), run.ID)
	var dup *DuplicateKeyError
	require.ErrorAs(t, err, &dup)

	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, model.ReasonDuplicateKey, got.FailureReason)
}

func TestApprovalGateSuspendsBeforeInvocation(t *testing.T) {
	inv := newScriptedInvoker()
	sink := &captureSink{}
	r := newTestRunner(t, inv, sink)

	run, err := r.Start(context.Background(), threeStageDef("strategy"), nil)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusRunning, run.Status)

	run, err = r.Advance(context.Background(), run.ID)
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusAwaitingApproval, run.Status)
	require.NotNil(t, run.PendingApproval)
	assert.Equal(t, "strategy", run.PendingApproval.StageName)
	assert.Equal(t, model.ApprovalPending, run.PendingApproval.Status)
	require.NotNil(t, run.PendingSince)
	// The gated stage must not run before the decision.
	assert.Equal(t, 0, inv.callCount("strategy"))

	// No further advancing while suspended.
	_, err = r.Advance(context.Background(), run.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestApprovedGateRunsStageAndDrivesToNextGateOrEnd(t *testing.T) {
	inv := newScriptedInvoker()
	r := newTestRunner(t, inv, nil)

	run, err := r.Start(context.Background(), threeStageDef("strategy"), nil)
	require.NoError(t, err)
	run, err = r.Advance(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusAwaitingApproval, run.Status)

	run, err = r.ResolveApproval(context.Background(), run.ID, model.ApprovalDecision{
		Status:    model.ApprovalApproved,
		DecidedBy: "ops@abank",
	})
	require.NoError(t, err)

	// The gated stage ran, and the trailing ungated stage was driven
	// through to completion without another Advance call.
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, inv.callCount("strategy"))
	assert.Equal(t, 1, inv.callCount("deployment"))
	assert.Nil(t, run.PendingApproval)
}

func TestRejectedGateFailsRun(t *testing.T) {
	inv := newScriptedInvoker()
	r := newTestRunner(t, inv, nil)

	run, err := r.Start(context.Background(), threeStageDef("strategy"), nil)
	require.NoError(t, err)
	run, err = r.Advance(context.Background(), run.ID)
	require.NoError(t, err)

	run, err = r.ResolveApproval(context.Background(), run.ID, model.ApprovalDecision{
		Status:    model.ApprovalRejected,
		DecidedBy: "compliance@abank",
	})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, model.ReasonApprovalDenied, run.FailureReason)
	assert.Equal(t, "strategy", run.FailedStage)
	assert.Nil(t, run.PendingApproval)
	assert.Equal(t, 0, inv.callCount("strategy"))

	// The decision is terminal: a second resolution is rejected.
	_, err = r.ResolveApproval(context.Background(), run.ID, model.ApprovalDecision{Status: model.ApprovalApproved})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestModifiedGateWritesReplacementVerbatim(t *testing.T) {
	inv := newScriptedInvoker()
	r := newTestRunner(t, inv, nil)

	run, err := r.Start(context.Background(), threeStageDef("strategy"), nil)
	require.NoError(t, err)
	run, err = r.Advance(context.Background(), run.ID)
	require.NoError(t, err)

	replacement := map[string]any{"copy": "use the toned-down headline", "channels": []any{"email"}}
	run, err = r.ResolveApproval(context.Background(), run.ID, model.ApprovalDecision{
		Status:      model.ApprovalModified,
		DecidedBy:   "cmo@abank",
		Replacement: replacement,
	})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, run.Status)
	// The replacement is the stage output; the agent was never invoked.
	assert.Equal(t, replacement, run.Context["strategy"])
	assert.Equal(t, 0, inv.callCount("strategy"))
	assert.Equal(t, 1, inv.callCount("deployment"))
}

func TestResolveApprovalRequiresSuspendedRun(t *testing.T) {
	inv := newScriptedInvoker()
	r := newTestRunner(t, inv, nil)

	run, err := r.Start(context.Background(), threeStageDef(""), nil)
	require.NoError(t, err)

	_, err = r.ResolveApproval(context.Background(), run.ID, model.ApprovalDecision{Status: model.ApprovalApproved})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestTransientFailuresRetryThenSucceed(t *testing.T) {
	inv := newScriptedInvoker()
	inv.failWith("analysis",
		Transient(errors.New("rate limited")),
		Transient(errors.New("rate limited")),
	)
	sink := &captureSink{}
	r := newTestRunner(t, inv, sink)

	run, err := r.Start(context.Background(), threeStageDef(""), nil)
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.Equal(t, 3, inv.callCount("analysis"))

	retries := 0
	for _, et := range sink.types() {
		if et == model.EventStageRetried {
			retries++
		}
	}
	assert.Equal(t, 2, retries)
}

func TestTransientFailuresExhaustRetryBudget(t *testing.T) {
	inv := newScriptedInvoker()
	inv.failWith("analysis",
		Transient(errors.New("unavailable")),
		Transient(errors.New("unavailable")),
		Transient(errors.New("unavailable")),
	)
	r := newTestRunner(t, inv, nil)

	run, err := r.Start(context.Background(), threeStageDef(""), nil)
	require.Error(t, err)

	// max-attempts of 3 means exactly 3 invocation attempts, no more.
	assert.Equal(t, 3, inv.callCount("analysis"))
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, model.ReasonRetriesExhausted, run.FailureReason)
	assert.Equal(t, "analysis", run.FailedStage)
}

func TestPermanentFailureDoesNotRetry(t *testing.T) {
	inv := newScriptedInvoker()
	inv.failWith("analysis", Permanent(errors.New("invalid campaign brief")))
	r := newTestRunner(t, inv, nil)

	run, err := r.Start(context.Background(), threeStageDef(""), nil)
	require.Error(t, err)

	assert.Equal(t, 1, inv.callCount("analysis"))
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, model.ReasonPermanentFailure, run.FailureReason)
}

func TestStageTimeoutIsTransient(t *testing.T) {
	slow := InvokerFunc(func(ctx context.Context, _ model.StageDescriptor, _ map[string]map[string]any) (StageOutput, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r, err := NewRunner(RunnerConfig{
		Invoker: slow,
		Retry:   RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
	})
	require.NoError(t, err)

	def := Definition{
		Name: "slow",
		Stages: []model.StageDescriptor{
			{Name: "stall", AgentRole: model.RoleMarketIntelligence, Timeout: 5 * time.Millisecond},
		},
	}
	run, err := r.Start(context.Background(), def, nil)
	require.Error(t, err)

	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, model.ReasonRetriesExhausted, run.FailureReason)
}

func TestCancelRunningRun(t *testing.T) {
	inv := newScriptedInvoker()
	r := newTestRunner(t, inv, nil)

	run, err := r.Start(context.Background(), threeStageDef(""), nil)
	require.NoError(t, err)

	run, err = r.Cancel(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCancelled, run.Status)
	require.NotNil(t, run.CompletedAt)

	_, err = r.Cancel(context.Background(), run.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelSuspendedRunDiscardsApproval(t *testing.T) {
	inv := newScriptedInvoker()
	r := newTestRunner(t, inv, nil)

	run, err := r.Start(context.Background(), threeStageDef("strategy"), nil)
	require.NoError(t, err)
	run, err = r.Advance(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusAwaitingApproval, run.Status)

	run, err = r.Cancel(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCancelled, run.Status)
	assert.Nil(t, run.PendingApproval)
	assert.Equal(t, 0, inv.callCount("strategy"))
}

func TestFirstStageGateSuspendsImmediately(t *testing.T) {
	inv := newScriptedInvoker()
	r := newTestRunner(t, inv, nil)

	run, err := r.Start(context.Background(), threeStageDef("analysis"), nil)
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusAwaitingApproval, run.Status)
	assert.Equal(t, 0, run.CurrentStage)
	assert.Equal(t, 0, inv.callCount("analysis"))
}

func TestRunsAreIsolated(t *testing.T) {
	inv := newScriptedInvoker()
	r := newTestRunner(t, inv, nil)

	a, err := r.Start(context.Background(), threeStageDef(""), map[string]any{"campaign": "a"})
	require.NoError(t, err)
	b, err := r.Start(context.Background(), threeStageDef(""), map[string]any{"campaign": "b"})
	require.NoError(t, err)

	gotA, err := r.Get(context.Background(), a.ID)
	require.NoError(t, err)
	gotB, err := r.Get(context.Background(), b.ID)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"campaign": "a"}, gotA.Context[model.ContextKeyInput])
	assert.Equal(t, map[string]any{"campaign": "b"}, gotB.Context[model.ContextKeyInput])
}

func TestSnapshotsAreDetached(t *testing.T) {
	inv := newScriptedInvoker()
	r := newTestRunner(t, inv, nil)

	run, err := r.Start(context.Background(), threeStageDef(""), map[string]any{"k": "v"})
	require.NoError(t, err)

	// Mutating the returned snapshot must not leak into engine state.
	run.Context[model.ContextKeyInput]["k"] = "tampered"
	got, err := r.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "v", got.Context[model.ContextKeyInput]["k"])
}

func TestStartPersistsToStore(t *testing.T) {
	store := NewMemoryStore()
	r, err := NewRunner(RunnerConfig{
		Invoker: newScriptedInvoker(),
		Store:   store,
		Retry:   RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond},
	})
	require.NoError(t, err)

	run, err := r.Start(context.Background(), threeStageDef(""), nil)
	require.NoError(t, err)

	persisted, err := store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, persisted.ID)
	assert.Equal(t, run.CurrentStage, persisted.CurrentStage)
}

func TestTerminalRunsAreReleasedFromMemory(t *testing.T) {
	inv := newScriptedInvoker()
	r := newTestRunner(t, inv, nil)

	run, err := r.Start(context.Background(), Definition{
		Name: "single",
		Stages: []model.StageDescriptor{
			{Name: "only", AgentRole: model.RoleMarketIntelligence},
		},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusCompleted, run.Status)

	r.mu.Lock()
	_, resident := r.runs[run.ID]
	r.mu.Unlock()
	assert.False(t, resident)

	// Reads keep working through the store.
	got, err := r.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)

	// Mutations still report the terminal state rather than not-found.
	_, err = r.Cancel(context.Background(), run.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = r.Advance(context.Background(), run.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelledRunIsReleasedFromMemory(t *testing.T) {
	inv := newScriptedInvoker()
	r := newTestRunner(t, inv, nil)

	run, err := r.Start(context.Background(), threeStageDef(""), nil)
	require.NoError(t, err)
	_, err = r.Cancel(context.Background(), run.ID)
	require.NoError(t, err)

	r.mu.Lock()
	_, resident := r.runs[run.ID]
	r.mu.Unlock()
	assert.False(t, resident)

	got, err := r.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCancelled, got.Status)
}

func TestProposedActionStaysValidUTF8(t *testing.T) {
	// A one-byte prefix shifts every following two-byte rune onto an odd
	// offset, so a naive byte cut would land mid-rune.
	stage := model.StageDescriptor{
		Name:        "deployment",
		AgentRole:   model.RoleCampaignExecution,
		Description: "x" + strings.Repeat("é", 200),
	}

	action := proposedAction(stage)
	assert.True(t, utf8.ValidString(action))
	assert.True(t, strings.HasSuffix(action, "…"))

	short := model.StageDescriptor{
		Name:        "deployment",
		AgentRole:   model.RoleCampaignExecution,
		Description: "ship the campaign",
	}
	assert.Contains(t, proposedAction(short), "ship the campaign")
}

func TestHydrateRejectsTerminalRuns(t *testing.T) {
	r := newTestRunner(t, newScriptedInvoker(), nil)
	err := r.Hydrate(model.WorkflowRun{
		ID:     uuid.New(),
		Status: model.RunStatusCompleted,
	})
	assert.ErrorIs(t, err, ErrInvalidState)
}
