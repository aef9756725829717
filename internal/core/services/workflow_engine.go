package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pontoonhq/pontoon/internal/core/domain"
	"github.com/pontoonhq/pontoon/internal/core/ports"
)

// WorkflowEngine runs workflow executions. Steps execute strictly in order;
// each step's output is shallow-merged into a running context that seeds the
// next step. The durable execution record is the source of truth: every
// transition is persisted before control returns.
type WorkflowEngine struct {
	logger     *slog.Logger
	workflows  ports.WorkflowRepository
	executions ports.ExecutionRepository
	router     *IntegrationRouter
	agents     ports.AgentDirectory
	bus        *EventBus

	mu     sync.Mutex
	active map[domain.ExecutionID]context.CancelFunc
}

func NewWorkflowEngine(logger *slog.Logger, workflows ports.WorkflowRepository, executions ports.ExecutionRepository, router *IntegrationRouter, agents ports.AgentDirectory, bus *EventBus) *WorkflowEngine {
	return &WorkflowEngine{
		logger:     logger,
		workflows:  workflows,
		executions: executions,
		router:     router,
		agents:     agents,
		bus:        bus,
		active:     make(map[domain.ExecutionID]context.CancelFunc),
	}
}

// Execute runs the workflow to completion and returns the final execution
// record. A validation failure leaves the record pending; a step failure
// marks it failed and the error is returned alongside the record. Both keep
// the durable record as evidence.
func (e *WorkflowEngine) Execute(ctx context.Context, workflowID domain.WorkflowID, input map[string]any, userID string) (*domain.WorkflowExecution, error) {
	wf, err := e.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	exec := &domain.WorkflowExecution{
		ID:         domain.ExecutionID(uuid.NewString()),
		WorkflowID: workflowID,
		Status:     domain.ExecutionStatusPending,
		StartedAt:  time.Now().UTC(),
		Input:      input,
	}
	exec.AppendLog(domain.LogInfo, "starting workflow execution", map[string]any{
		"workflow": wf.Name,
		"steps":    len(wf.Steps),
	})
	if err := e.executions.SaveExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to create execution record: %w", err)
	}

	if err := wf.Validate(); err != nil {
		exec.AppendLog(domain.LogError, "workflow validation failed", map[string]any{"error": err.Error()})
		if saveErr := e.executions.SaveExecution(ctx, exec); saveErr != nil {
			e.logger.Error("failed to persist validation log", "execution_id", exec.ID, "error", saveErr)
		}
		return exec, err
	}

	if _, err := e.agents.Resolve(ctx, wf.Agent.ID); err != nil {
		return e.failExecution(ctx, exec, fmt.Errorf("agent %s unavailable: %w", wf.Agent.ID, err))
	}

	exec.Status = domain.ExecutionStatusRunning
	if err := e.executions.SaveExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to mark execution running: %w", err)
	}
	e.emit(exec.ID, EventExecutionStarted, map[string]any{
		"workflow_id": workflowID,
		"steps":       len(wf.Steps),
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mu.Lock()
	e.active[exec.ID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, exec.ID)
		e.mu.Unlock()
	}()

	// The step context starts as a copy of the input so steps never mutate
	// the recorded input.
	stepCtx := make(map[string]any, len(input))
	for k, v := range input {
		stepCtx[k] = v
	}

	for i, step := range wf.Steps {
		if runCtx.Err() != nil {
			return e.failExecution(ctx, exec, fmt.Errorf("%w: stopped before step %s", domain.ErrExecutionCanceled, step.ID))
		}

		exec.AppendLog(domain.LogInfo, fmt.Sprintf("executing step %d/%d", i+1, len(wf.Steps)), map[string]any{
			"step_id": step.ID,
			"type":    step.Action.Type,
			"action":  step.Action.Action,
		})
		e.emit(exec.ID, EventStepStarted, map[string]any{"step_id": step.ID, "index": i})

		result, err := e.runStep(runCtx, wf, step, stepCtx, userID)
		if err != nil {
			exec.AppendLog(domain.LogError, fmt.Sprintf("step %s failed", step.ID), map[string]any{"error": err.Error()})
			e.emit(exec.ID, EventStepFailed, map[string]any{"step_id": step.ID, "error": err.Error()})
			return e.failExecution(ctx, exec, fmt.Errorf("step %s: %w", step.ID, err))
		}

		// Shallow merge: later steps overwrite colliding keys.
		for k, v := range result {
			stepCtx[k] = v
		}

		exec.AppendLog(domain.LogInfo, fmt.Sprintf("step %s completed", step.ID), map[string]any{
			"keys": len(result),
		})
		e.emit(exec.ID, EventStepCompleted, map[string]any{"step_id": step.ID})
	}

	exec.Status = domain.ExecutionStatusCompleted
	exec.Output = stepCtx
	now := time.Now().UTC()
	exec.CompletedAt = &now
	exec.AppendLog(domain.LogInfo, "workflow execution completed", map[string]any{
		"output_keys": len(stepCtx),
	})
	if err := e.executions.SaveExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to persist completed execution: %w", err)
	}
	e.emit(exec.ID, EventExecutionCompleted, map[string]any{"workflow_id": workflowID})

	e.logger.Info("workflow execution completed",
		"execution_id", exec.ID, "workflow_id", workflowID, "steps", len(wf.Steps))
	return exec, nil
}

// Cancel stops a running execution. Unknown or already-terminal executions
// are a no-op. Cancellation is asynchronous: the run loop observes it between
// steps, so the persisted record can still read running for a short window
// after Cancel returns.
func (e *WorkflowEngine) Cancel(executionID domain.ExecutionID) {
	e.mu.Lock()
	cancel, ok := e.active[executionID]
	e.mu.Unlock()
	if !ok {
		return
	}
	e.logger.Info("canceling workflow execution", "execution_id", executionID)
	cancel()
}

// GetExecution returns the durable record for one execution.
func (e *WorkflowEngine) GetExecution(ctx context.Context, id domain.ExecutionID) (*domain.WorkflowExecution, error) {
	return e.executions.GetExecution(ctx, id)
}

// ListExecutions returns the execution history, optionally filtered by
// workflow.
func (e *WorkflowEngine) ListExecutions(ctx context.Context, workflowID domain.WorkflowID) ([]domain.WorkflowExecution, error) {
	return e.executions.ListExecutions(ctx, workflowID)
}

func (e *WorkflowEngine) runStep(ctx context.Context, wf *domain.Workflow, step domain.WorkflowStep, stepCtx map[string]any, userID string) (map[string]any, error) {
	switch step.Action.Type {
	case domain.StepTypeIntegration:
		return e.runIntegrationStep(ctx, wf, step, stepCtx, userID)
	case domain.StepTypeAgent:
		return e.runAgentStep(step, stepCtx)
	default:
		return nil, fmt.Errorf("unknown step type %q", step.Action.Type)
	}
}

func (e *WorkflowEngine) runIntegrationStep(ctx context.Context, wf *domain.Workflow, step domain.WorkflowStep, stepCtx map[string]any, userID string) (map[string]any, error) {
	if step.Action.Target == "" {
		return nil, fmt.Errorf("integration step has no target tool")
	}

	// Step config wins over accumulated context on key collisions.
	params := make(map[string]any, len(stepCtx)+len(step.Action.Config))
	for k, v := range stepCtx {
		params[k] = v
	}
	for k, v := range step.Action.Config {
		params[k] = v
	}

	agentID := step.AgentID
	if agentID == "" {
		agentID = wf.Agent.ID
	}

	resp := e.router.Execute(ctx, &domain.IntegrationRequest{
		Tool:    step.Action.Target,
		Action:  step.Action.Action,
		Params:  params,
		AgentID: agentID,
		UserID:  userID,
	})
	if !resp.Success {
		msg := "integration call failed"
		if resp.Error != nil {
			msg = fmt.Sprintf("%s (%s)", resp.Error.Message, resp.Error.Code)
		}
		return nil, fmt.Errorf("%s: %s", step.Action.Target, msg)
	}
	return resp.Data, nil
}

// runAgentStep handles the agent-local actions that need no external tool.
func (e *WorkflowEngine) runAgentStep(step domain.WorkflowStep, stepCtx map[string]any) (map[string]any, error) {
	switch step.Action.Action {
	case "summarize":
		return map[string]any{"summary": summarizeContext(stepCtx)}, nil
	case "analyze":
		keys := make([]string, 0, len(stepCtx))
		for k := range stepCtx {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return map[string]any{
			"analysis": map[string]any{"keys": keys, "count": len(keys)},
		}, nil
	case "process":
		out := make(map[string]any, len(step.Action.Config))
		for k, v := range step.Action.Config {
			out[k] = v
		}
		out["processed_at"] = time.Now().UTC().Format(time.RFC3339)
		return out, nil
	default:
		return nil, fmt.Errorf("unknown agent action %q", step.Action.Action)
	}
}

func (e *WorkflowEngine) failExecution(ctx context.Context, exec *domain.WorkflowExecution, cause error) (*domain.WorkflowExecution, error) {
	exec.Status = domain.ExecutionStatusFailed
	exec.Errors = append(exec.Errors, cause.Error())
	now := time.Now().UTC()
	exec.CompletedAt = &now
	exec.AppendLog(domain.LogError, "workflow execution failed", map[string]any{"error": cause.Error()})

	// The record must land even when the failure is a cancellation.
	if err := e.executions.SaveExecution(context.WithoutCancel(ctx), exec); err != nil {
		e.logger.Error("failed to persist failed execution", "execution_id", exec.ID, "error", err)
	}
	e.emit(exec.ID, EventExecutionFailed, map[string]any{"error": cause.Error()})

	e.logger.Error("workflow execution failed",
		"execution_id", exec.ID, "workflow_id", exec.WorkflowID, "error", cause)
	return exec, cause
}

func (e *WorkflowEngine) emit(id domain.ExecutionID, eventType EventType, data map[string]any) {
	if e.bus == nil {
		return
	}
	payload, _ := json.Marshal(data)
	e.bus.Publish(Event{
		ExecutionID: string(id),
		Type:        eventType,
		Data:        string(payload),
		Timestamp:   time.Now().UnixMilli(),
	})
}

// summarizeContext renders the accumulated step context as a short stable
// digest, sorted by key.
func summarizeContext(stepCtx map[string]any) string {
	keys := make([]string, 0, len(stepCtx))
	for k := range stepCtx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, stepCtx[k]))
	}
	if len(parts) == 0 {
		return "no context"
	}
	return strings.Join(parts, "; ")
}
