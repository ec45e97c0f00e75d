// Package workflow implements the sequential campaign workflow contract:
// ordered stage execution, append-only context passing, human approval
// gates, and bounded retry around the agent invoker boundary.
//
// A run is driven by a single logical thread of control. Distinct runs are
// fully independent (each owns its context exclusively), so the Runner is
// safe for concurrent use across runs; operations on one run are serialized
// by a per-run mutex.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/abanklabs/crewflow/internal/model"
	"github.com/abanklabs/crewflow/internal/telemetry"
)

// RetryPolicy bounds transient-failure retries around the invoker.
// MaxAttempts counts total invocation attempts, not re-tries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	return p
}

// RunnerConfig holds the dependencies for creating a Runner.
// Store and Sink are optional: a nil Store falls back to an in-memory store,
// a nil Sink disables event emission.
type RunnerConfig struct {
	Invoker             Invoker
	Store               Store
	Sink                EventSink
	Logger              *slog.Logger
	Retry               RetryPolicy
	DefaultStageTimeout time.Duration
}

// Runner drives workflow runs from running to a terminal state.
type Runner struct {
	invoker        Invoker
	store          Store
	sink           EventSink
	logger         *slog.Logger
	retry          RetryPolicy
	defaultTimeout time.Duration

	stageDuration metric.Float64Histogram
	runsTerminal  metric.Int64Counter

	mu   sync.Mutex
	runs map[uuid.UUID]*runState
}

// runState is the live in-memory state of one run. Its mutex serializes all
// operations on the run.
type runState struct {
	mu  sync.Mutex
	run *model.WorkflowRun
	ctx *Context

	// gateCleared is the stage index whose approval gate has been satisfied
	// for the current invocation, or -1. Prevents a freshly approved stage
	// from re-suspending on its own gate.
	gateCleared int
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Invoker == nil {
		return nil, fmt.Errorf("workflow: runner requires an invoker")
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultStageTimeout <= 0 {
		cfg.DefaultStageTimeout = 2 * time.Minute
	}

	meter := telemetry.Meter("crewflow/workflow")
	stageDur, _ := meter.Float64Histogram("crewflow.stage.duration",
		metric.WithDescription("Time to complete one stage invocation (ms)"),
		metric.WithUnit("ms"),
	)
	runsTerminal, _ := meter.Int64Counter("crewflow.runs.terminal",
		metric.WithDescription("Runs reaching a terminal state, by status"),
	)

	return &Runner{
		invoker:        cfg.Invoker,
		store:          store,
		sink:           cfg.Sink,
		logger:         logger,
		retry:          cfg.Retry.withDefaults(),
		defaultTimeout: cfg.DefaultStageTimeout,
		stageDuration:  stageDur,
		runsTerminal:   runsTerminal,
		runs:           make(map[uuid.UUID]*runState),
	}, nil
}

// Start constructs a run from a validated definition, seeds its context with
// the initial input under the reserved input key, persists it, and performs
// the first stage step. If the first stage is gated the run suspends before
// invoking it.
func (r *Runner) Start(ctx context.Context, def Definition, input map[string]any) (model.WorkflowRun, error) {
	if err := def.Validate(); err != nil {
		return model.WorkflowRun{}, err
	}
	if input == nil {
		input = map[string]any{}
	}

	now := time.Now().UTC()
	run := &model.WorkflowRun{
		ID:        uuid.New(),
		Workflow:  def.Name,
		Status:    model.RunStatusRunning,
		StartedAt: now,
		CreatedAt: now,
	}
	run.Stages = make([]model.StageDescriptor, len(def.Stages))
	for i, s := range def.Stages {
		run.Stages[i] = s.Clone()
	}

	st := &runState{run: run, ctx: NewContext(), gateCleared: -1}
	if err := st.ctx.Put(model.ContextKeyInput, input); err != nil {
		return model.WorkflowRun{}, err
	}

	r.mu.Lock()
	r.runs[run.ID] = st
	r.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	// The initial save is fatal: a run that cannot be persisted must not
	// start, or a later suspension would be unrecoverable.
	if err := r.save(ctx, st); err != nil {
		r.mu.Lock()
		delete(r.runs, run.ID)
		r.mu.Unlock()
		return model.WorkflowRun{}, fmt.Errorf("workflow: persist new run: %w", err)
	}

	r.emit(ctx, st, model.EventRunStarted, "", "", map[string]any{"workflow": def.Name})
	err := r.step(ctx, st)
	return r.snapshot(st), err
}

// Advance performs one stage step on a running run: verifies required
// context, suspends on an unresolved approval gate, otherwise invokes the
// agent and commits its output. Calling Advance on a terminal or suspended
// run fails with ErrInvalidState.
//
// A step that fails the run returns the causing error alongside the final
// snapshot; the run's status and failure reason carry the same information.
func (r *Runner) Advance(ctx context.Context, runID uuid.UUID) (model.WorkflowRun, error) {
	st, err := r.state(runID)
	if err != nil {
		return r.retired(ctx, runID, "advance")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.run.Status != model.RunStatusRunning {
		return r.snapshot(st), fmt.Errorf("%w: cannot advance a %s run", ErrInvalidState, st.run.Status)
	}
	err = r.step(ctx, st)
	return r.snapshot(st), err
}

// ResolveApproval applies an external decision to a suspended run.
// Approved commits the gated stage and then drives subsequent stages until
// the next gate or a terminal state. Modified writes the decision's
// replacement payload into context in place of invoking the agent, then
// drives on the same way. Rejected fails the run with reason
// approval_denied. Resolving a run that is not awaiting approval fails with
// ErrInvalidState.
func (r *Runner) ResolveApproval(ctx context.Context, runID uuid.UUID, decision model.ApprovalDecision) (model.WorkflowRun, error) {
	st, err := r.state(runID)
	if err != nil {
		return r.retired(ctx, runID, "resolve an approval on")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.run.Status != model.RunStatusAwaitingApproval || st.run.PendingApproval == nil {
		return r.snapshot(st), fmt.Errorf("%w: run is not awaiting approval", ErrInvalidState)
	}
	if err := decision.Validate(); err != nil {
		return r.snapshot(st), err
	}

	req := st.run.PendingApproval
	if err := req.Resolve(decision.Status, decision.DecidedBy); err != nil {
		return r.snapshot(st), err
	}

	stage := st.run.Stages[st.run.CurrentStage]
	r.emit(ctx, st, model.EventApprovalResolved, stage.Name, stage.AgentRole, map[string]any{
		"decision":   string(decision.Status),
		"decided_by": decision.DecidedBy,
	})

	// The request is resolved exactly once, then discarded.
	st.run.PendingApproval = nil
	st.run.PendingSince = nil

	switch decision.Status {
	case model.ApprovalRejected:
		r.fail(ctx, st, model.ReasonApprovalDenied, stage.Name, nil)
		return r.snapshot(st), nil

	case model.ApprovalModified:
		st.run.Status = model.RunStatusRunning
		if err := r.commit(ctx, st, stage, decision.Replacement, true); err != nil {
			return r.snapshot(st), err
		}

	case model.ApprovalApproved:
		st.run.Status = model.RunStatusRunning
		st.gateCleared = st.run.CurrentStage
		if err := r.step(ctx, st); err != nil {
			return r.snapshot(st), err
		}
	}

	// Drive ungated stages until the next gate or a terminal state.
	for st.run.Status == model.RunStatusRunning {
		if err := r.step(ctx, st); err != nil {
			return r.snapshot(st), err
		}
	}
	return r.snapshot(st), nil
}

// Cancel transitions a running or suspended run directly to cancelled,
// discarding any outstanding approval request. Cancelling a terminal run
// fails with ErrInvalidState.
func (r *Runner) Cancel(ctx context.Context, runID uuid.UUID) (model.WorkflowRun, error) {
	st, err := r.state(runID)
	if err != nil {
		return r.retired(ctx, runID, "cancel")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.run.Status.Terminal() {
		return r.snapshot(st), fmt.Errorf("%w: cannot cancel a %s run", ErrInvalidState, st.run.Status)
	}

	now := time.Now().UTC()
	st.run.Status = model.RunStatusCancelled
	st.run.PendingApproval = nil
	st.run.PendingSince = nil
	st.run.CompletedAt = &now
	st.gateCleared = -1

	r.emit(ctx, st, model.EventRunCancelled, "", "", nil)
	r.recordTerminal(ctx, st)
	r.persist(ctx, st)
	r.retire(st.run.ID)
	return r.snapshot(st), nil
}

// Get returns a read-only snapshot of a run, falling back to the store for
// runs not resident in memory (e.g. after a restart).
func (r *Runner) Get(ctx context.Context, runID uuid.UUID) (model.WorkflowRun, error) {
	if st, err := r.state(runID); err == nil {
		st.mu.Lock()
		defer st.mu.Unlock()
		return r.snapshot(st), nil
	}
	return r.store.GetRun(ctx, runID)
}

// List returns persisted runs, most recent first.
func (r *Runner) List(ctx context.Context, limit int) ([]model.WorkflowRun, error) {
	return r.store.ListRuns(ctx, limit)
}

// Hydrate registers a persisted run snapshot back into memory so that
// advance/resolve/cancel work after a restart. Terminal runs are rejected.
func (r *Runner) Hydrate(run model.WorkflowRun) error {
	if run.Status.Terminal() {
		return fmt.Errorf("%w: cannot hydrate a %s run", ErrInvalidState, run.Status)
	}
	clone := run.Clone()
	st := &runState{
		run:         &clone,
		ctx:         ContextFrom(run.Context),
		gateCleared: -1,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[run.ID]; exists {
		return fmt.Errorf("workflow: run %s already registered", run.ID)
	}
	r.runs[run.ID] = st
	return nil
}

// ── Internal drive machinery ───────────────────────────────────────────────

func (r *Runner) state(runID uuid.UUID) (*runState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return st, nil
}

// retire drops the live state of a run that reached a terminal state, so a
// long-lived process does not accumulate finished runs. Reads keep working
// through the store fallback in Get.
func (r *Runner) retire(runID uuid.UUID) {
	r.mu.Lock()
	delete(r.runs, runID)
	r.mu.Unlock()
}

// retired resolves a mutating call on a non-resident run: a retired terminal
// run reports its status, anything else is unknown.
func (r *Runner) retired(ctx context.Context, runID uuid.UUID, verb string) (model.WorkflowRun, error) {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return model.WorkflowRun{}, ErrRunNotFound
	}
	if run.Status.Terminal() {
		return run, fmt.Errorf("%w: cannot %s a %s run", ErrInvalidState, verb, run.Status)
	}
	return model.WorkflowRun{}, ErrRunNotFound
}

// step processes exactly one stage: context check, gate check, invocation
// with retry, commit. Caller holds st.mu and has verified status is running.
func (r *Runner) step(ctx context.Context, st *runState) error {
	run := st.run
	stage := run.Stages[run.CurrentStage]

	// Required context must already exist. Absence means the stage graph is
	// malformed, which is fatal rather than a retryable runtime fault.
	if missing := st.ctx.MissingKey(stage.RequiredContext); missing != "" {
		err := &MissingContextError{Stage: stage.Name, Key: missing}
		r.fail(ctx, st, model.ReasonMissingContext, stage.Name, err)
		return err
	}

	// Unresolved gate: create the approval request and suspend. This is the
	// single suspension point in the system.
	if stage.RequiresApproval && st.gateCleared != run.CurrentStage {
		req := model.NewApprovalRequest(run.ID, stage.Name, proposedAction(stage))
		now := time.Now().UTC()
		run.PendingApproval = req
		run.PendingSince = &now
		run.Status = model.RunStatusAwaitingApproval

		r.emit(ctx, st, model.EventApprovalRequested, stage.Name, stage.AgentRole, map[string]any{
			"approval_id":     req.ID,
			"proposed_action": req.ProposedAction,
		})
		r.persist(ctx, st)
		return nil
	}
	st.gateCleared = -1

	r.emit(ctx, st, model.EventStageStarted, stage.Name, stage.AgentRole, nil)

	output, err := r.invokeWithRetry(ctx, st, stage)
	if err != nil {
		return err
	}
	return r.commit(ctx, st, stage, output, false)
}

// invokeWithRetry calls the invoker with the stage's timeout, retrying
// transient failures with jittered exponential backoff. Exhaustion and
// permanent failures transition the run to failed.
func (r *Runner) invokeWithRetry(ctx context.Context, st *runState, stage model.StageDescriptor) (StageOutput, error) {
	snapshot := st.ctx.Snapshot()
	delay := r.retry.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		start := time.Now()
		output, err := r.invokeOnce(ctx, stage, snapshot)
		r.stageDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(
				attribute.String("stage", stage.Name),
				attribute.String("agent_role", string(stage.AgentRole)),
			))
		if err == nil {
			return output, nil
		}

		if !IsTransient(err) {
			// Permanent (or unclassified) collaborator failure: no retry.
			r.fail(ctx, st, model.ReasonPermanentFailure, stage.Name, err)
			return nil, err
		}

		lastErr = err
		if attempt == r.retry.MaxAttempts {
			break
		}

		jitter := time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		backoff := delay + jitter
		r.emit(ctx, st, model.EventStageRetried, stage.Name, stage.AgentRole, map[string]any{
			"attempt":      attempt,
			"max_attempts": r.retry.MaxAttempts,
			"error":        err.Error(),
			"backoff_ms":   backoff.Milliseconds(),
		})

		select {
		case <-ctx.Done():
			r.fail(ctx, st, model.ReasonPermanentFailure, stage.Name, ctx.Err())
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		delay *= 2
	}

	r.fail(ctx, st, model.ReasonRetriesExhausted, stage.Name, lastErr)
	return nil, lastErr
}

// invokeOnce performs a single bounded invocation attempt. A timeout is
// classified as transient so a slow integration does not hard-fail the run.
func (r *Runner) invokeOnce(ctx context.Context, stage model.StageDescriptor, snapshot map[string]map[string]any) (StageOutput, error) {
	timeout := stage.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := r.invoker.Invoke(attemptCtx, stage, snapshot)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !IsTransient(err) && !IsPermanent(err) {
			return nil, Transient(err)
		}
		return nil, err
	}
	return output, nil
}

// commit writes a stage's output into context and advances the run,
// completing it when the last stage is done. Caller holds st.mu.
func (r *Runner) commit(ctx context.Context, st *runState, stage model.StageDescriptor, output StageOutput, modified bool) error {
	run := st.run

	if output == nil {
		output = map[string]any{}
	}
	if err := st.ctx.Put(stage.Name, output); err != nil {
		r.fail(ctx, st, model.ReasonDuplicateKey, stage.Name, err)
		return err
	}

	var payload map[string]any
	if modified {
		payload = map[string]any{"modified": true}
	}
	r.emit(ctx, st, model.EventStageCompleted, stage.Name, stage.AgentRole, payload)

	run.CurrentStage++
	if run.CurrentStage == len(run.Stages) {
		now := time.Now().UTC()
		run.Status = model.RunStatusCompleted
		run.CompletedAt = &now
		r.emit(ctx, st, model.EventRunCompleted, "", "", map[string]any{
			"stages": len(run.Stages),
		})
		r.recordTerminal(ctx, st)
	}
	r.persist(ctx, st)
	if run.Status.Terminal() {
		r.retire(run.ID)
	}
	return nil
}

// fail transitions the run to failed with a machine-readable reason and the
// offending stage. Caller holds st.mu.
func (r *Runner) fail(ctx context.Context, st *runState, reason model.FailureReason, stageName string, cause error) {
	run := st.run
	now := time.Now().UTC()
	run.Status = model.RunStatusFailed
	run.FailureReason = reason
	run.FailedStage = stageName
	run.PendingApproval = nil
	run.PendingSince = nil
	run.CompletedAt = &now
	st.gateCleared = -1

	payload := map[string]any{"reason": string(reason), "stage": stageName}
	if cause != nil {
		payload["error"] = cause.Error()
	}
	r.emit(ctx, st, model.EventRunFailed, stageName, "", payload)
	r.recordTerminal(ctx, st)
	r.persist(ctx, st)
	r.retire(run.ID)
}

// snapshot syncs the run's context copy and returns a deep clone.
// Caller holds st.mu.
func (r *Runner) snapshot(st *runState) model.WorkflowRun {
	st.run.Context = st.ctx.Snapshot()
	return st.run.Clone()
}

// persist saves the current snapshot. Failures after the initial save are
// logged, not fatal: the in-memory run stays authoritative and the next
// transition retries the save.
func (r *Runner) persist(ctx context.Context, st *runState) {
	if err := r.save(ctx, st); err != nil {
		r.logger.Warn("run state persistence failed",
			"run_id", st.run.ID, "status", st.run.Status, "error", err)
	}
}

func (r *Runner) save(ctx context.Context, st *runState) error {
	st.run.Context = st.ctx.Snapshot()
	return r.store.SaveRun(ctx, *st.run)
}

func (r *Runner) emit(ctx context.Context, st *runState, eventType model.EventType, stageName string, role model.AgentRole, payload map[string]any) {
	if r.sink == nil {
		return
	}
	event := model.NewWorkflowEvent(st.run.ID, eventType, stageName, role, payload)
	if err := r.sink.OnEvent(ctx, event); err != nil {
		r.logger.Warn("event emission failed", "event_type", eventType, "run_id", st.run.ID, "error", err)
	}
}

func (r *Runner) recordTerminal(ctx context.Context, st *runState) {
	r.runsTerminal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(st.run.Status)),
		attribute.String("workflow", st.run.Workflow),
	))
}

// proposedAction summarizes the stage's planned work for the approval request.
func proposedAction(stage model.StageDescriptor) string {
	summary := stage.Description
	const max = 280
	if len(summary) > max {
		// Cut on a rune boundary so the summary stays valid UTF-8.
		cut := max
		for cut > 0 && !utf8.RuneStart(summary[cut]) {
			cut--
		}
		summary = summary[:cut] + "…"
	}
	if summary == "" {
		return fmt.Sprintf("%s executes stage %s", stage.AgentRole, stage.Name)
	}
	return fmt.Sprintf("%s: %s", stage.AgentRole, summary)
}
