package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/abanklabs/crewflow/internal/model"
	"github.com/abanklabs/crewflow/internal/storage"
	"github.com/abanklabs/crewflow/internal/workflow"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	runner      *workflow.Runner
	definitions map[string]workflow.Definition
	db          *storage.DB // optional, enables the events endpoint
	logger      *slog.Logger
	version     string
	maxBody     int64
	openapiSpec []byte
}

// HandlersDeps configures NewHandlers. DB and OpenAPISpec are optional.
type HandlersDeps struct {
	Runner              *workflow.Runner
	Definitions         map[string]workflow.Definition
	DB                  *storage.DB
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates the handler set.
func NewHandlers(deps HandlersDeps) *Handlers {
	if deps.MaxRequestBodyBytes <= 0 {
		deps.MaxRequestBodyBytes = 1 << 20
	}
	return &Handlers{
		runner:      deps.Runner,
		definitions: deps.Definitions,
		db:          deps.DB,
		logger:      deps.Logger,
		version:     deps.Version,
		maxBody:     deps.MaxRequestBodyBytes,
		openapiSpec: deps.OpenAPISpec,
	}
}

// HandleListWorkflows returns the registered workflow definitions.
func (h *Handlers) HandleListWorkflows(w http.ResponseWriter, r *http.Request) {
	type workflowInfo struct {
		Name        string                  `json:"name"`
		Description string                  `json:"description,omitempty"`
		Stages      []model.StageDescriptor `json:"stages"`
	}

	infos := make([]workflowInfo, 0, len(h.definitions))
	for _, def := range h.definitions {
		d := def.Clone()
		infos = append(infos, workflowInfo{Name: d.Name, Description: d.Description, Stages: d.Stages})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	writeJSON(w, r, http.StatusOK, map[string]any{"workflows": infos})
}

// HandleStartRun starts a run of the named workflow.
func (h *Handlers) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("workflow")
	if len(name) > model.MaxWorkflowNameLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "workflow name too long")
		return
	}
	def, ok := h.definitions[name]
	if !ok {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "unknown workflow: "+name)
		return
	}

	var req model.StartRunRequest
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	run, err := h.runner.Start(r.Context(), def, req.Input)
	if err != nil && run.ID == uuid.Nil {
		h.logger.Error("start run failed", "workflow", name, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to start run")
		return
	}
	// A run that started but failed during its first stage is still a
	// created resource; its status carries the failure.
	writeJSON(w, r, http.StatusCreated, run)
}

// HandleGetRun returns the full state of one run.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	run, err := h.runner.Get(r.Context(), runID)
	if err != nil {
		h.writeRunError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// HandleListRuns returns run summaries, most recent first.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "limit must be in 1..500")
			return
		}
		limit = n
	}

	runs, err := h.runner.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list runs failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to list runs")
		return
	}

	summaries := make([]model.RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, run.Summary())
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"runs": summaries})
}

// HandleAdvanceRun performs one stage step on a running run.
func (h *Handlers) HandleAdvanceRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	run, err := h.runner.Advance(r.Context(), runID)
	if err != nil && isCallerError(err) {
		h.writeRunError(w, r, err)
		return
	}
	// Stage failures are carried by the run itself, not the transport.
	writeJSON(w, r, http.StatusOK, run)
}

// HandleResolveApproval applies an approval decision to a suspended run.
func (h *Handlers) HandleResolveApproval(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}

	var req model.SubmitDecisionRequest
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	run, err := h.runner.ResolveApproval(r.Context(), runID, model.ApprovalDecision{
		Status:      req.Decision,
		DecidedBy:   req.DecidedBy,
		Replacement: req.Replacement,
	})
	if err != nil && isCallerError(err) {
		h.writeRunError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// HandleCancelRun cancels a running or suspended run.
func (h *Handlers) HandleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	run, err := h.runner.Cancel(r.Context(), runID)
	if err != nil {
		h.writeRunError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// HandleListRunEvents returns the event log for one run. Requires a
// database; without one the event log is not retained.
func (h *Handlers) HandleListRunEvents(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "event log requires persistent storage")
		return
	}
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	events, err := h.db.ListEventsByRun(r.Context(), runID, 500)
	if err != nil {
		h.logger.Error("list events failed", "run_id", runID, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to list events")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"events": events})
}

// HandleHealth reports service liveness and database connectivity.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"version": h.version,
	}
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			writeJSON(w, r, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	writeJSON(w, r, http.StatusOK, status)
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

func (h *Handlers) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("run_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid run id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, workflow.ErrRunNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "run not found")
	case errors.Is(err, workflow.ErrInvalidState):
		writeError(w, r, http.StatusConflict, model.ErrCodeInvalidState, err.Error())
	case errors.Is(err, model.ErrAlreadyResolved):
		writeError(w, r, http.StatusConflict, model.ErrCodeInvalidState, err.Error())
	default:
		h.logger.Error("run operation failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error")
	}
}

// isCallerError reports whether err should map to a 4xx response rather
// than being carried on the run's own status.
func isCallerError(err error) bool {
	return errors.Is(err, workflow.ErrRunNotFound) ||
		errors.Is(err, workflow.ErrInvalidState) ||
		errors.Is(err, model.ErrAlreadyResolved)
}
