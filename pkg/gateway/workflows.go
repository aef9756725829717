package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pontoonhq/pontoon/internal/core/domain"
)

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf domain.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if wf.ID == "" {
		wf.ID = domain.WorkflowID(uuid.NewString())
	}
	if wf.Status == "" {
		wf.Status = domain.WorkflowStatusDraft
	}
	now := time.Now().UTC()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now

	if err := wf.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.workflows.SaveWorkflow(r.Context(), &wf); err != nil {
		s.logger.Error("failed to save workflow", "workflow_id", wf.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save workflow")
		return
	}

	writeJSON(w, http.StatusCreated, wf)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.workflows.ListWorkflows(r.Context())
	if err != nil {
		s.logger.Error("failed to list workflows", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list workflows")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": workflows})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := domain.WorkflowID(pathSegment(r.URL.Path, 2))

	wf, err := s.workflows.GetWorkflow(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			writeError(w, http.StatusNotFound, "workflow not found")
			return
		}
		s.logger.Error("failed to load workflow", "workflow_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load workflow")
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

type executeWorkflowRequest struct {
	UserID string         `json:"user_id"`
	Input  map[string]any `json:"input,omitempty"`
}

// handleExecuteWorkflow starts the run in the background and returns the
// pending execution id right away; clients follow progress over SSE or by
// polling the execution record.
func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := domain.WorkflowID(pathSegment(r.URL.Path, 2))

	var req executeWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if _, err := s.workflows.GetWorkflow(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			writeError(w, http.StatusNotFound, "workflow not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load workflow")
		return
	}

	done := make(chan *domain.WorkflowExecution, 1)
	go func() {
		exec, err := s.engine.Execute(context.WithoutCancel(r.Context()), id, req.Input, req.UserID)
		if err != nil {
			s.logger.Warn("workflow execution ended with error", "workflow_id", id, "error", err)
		}
		done <- exec
	}()

	// The engine persists the pending record before any work; wait briefly
	// so the response carries a real execution id even for fast failures.
	select {
	case exec := <-done:
		if exec == nil {
			writeError(w, http.StatusInternalServerError, "failed to start execution")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"execution_id": exec.ID,
			"status":       exec.Status,
		})
	case <-time.After(200 * time.Millisecond):
		writeJSON(w, http.StatusAccepted, map[string]any{
			"workflow_id": id,
			"status":      domain.ExecutionStatusRunning,
		})
	}
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	id := domain.WorkflowID(pathSegment(r.URL.Path, 2))

	executions, err := s.engine.ListExecutions(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to list executions", "workflow_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": executions})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := domain.ExecutionID(pathSegment(r.URL.Path, 2))

	exec, err := s.engine.GetExecution(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrExecutionNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		s.logger.Error("failed to load execution", "execution_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load execution")
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// handleCancelExecution requests cancellation and answers 202 right away.
// The record flips to failed once the run loop observes the cancel between
// steps; poll the execution or follow its SSE stream for the terminal state.
func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	id := domain.ExecutionID(pathSegment(r.URL.Path, 2))

	s.engine.Cancel(id)
	writeJSON(w, http.StatusAccepted, map[string]any{"execution_id": id, "cancel": "requested"})
}
