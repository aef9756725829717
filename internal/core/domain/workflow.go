package domain

import (
	"errors"
	"fmt"
	"time"
)

type WorkflowID string
type ExecutionID string
type WorkflowStatus string
type ExecutionStatus string
type TriggerType string
type LogLevel string

const (
	WorkflowStatusDraft  WorkflowStatus = "draft"
	WorkflowStatusActive WorkflowStatus = "active"
	WorkflowStatusPaused WorkflowStatus = "paused"
	WorkflowStatusError  WorkflowStatus = "error"

	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"

	TriggerManual   TriggerType = "manual"
	TriggerSchedule TriggerType = "schedule"
	TriggerEvent    TriggerType = "event"

	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"

	// StepTypeAgent runs in-engine; StepTypeIntegration goes through the
	// integration router.
	StepTypeAgent       = "agent"
	StepTypeIntegration = "integration"
)

var (
	ErrWorkflowInvalid   = errors.New("workflow validation failed")
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrExecutionCanceled = errors.New("execution canceled")
)

// Trigger describes what starts a workflow.
type Trigger struct {
	Type   TriggerType    `json:"type"`
	Event  string         `json:"event,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// AgentRef binds a workflow to the agent that owns its steps.
type AgentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// StepAction is one unit of work: an agent-local operation or an
// integration call (Target names the tool).
type StepAction struct {
	Type   string         `json:"type"`
	Action string         `json:"action"`
	Target ToolID         `json:"target,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// WorkflowStep is ordered within its workflow. NextSteps is advisory
// metadata only; execution is strictly sequential over the step list.
type WorkflowStep struct {
	ID         string         `json:"id"`
	Action     StepAction     `json:"action"`
	AgentID    string         `json:"agent_id,omitempty"`
	Conditions map[string]any `json:"conditions,omitempty"`
	NextSteps  []string       `json:"next_steps,omitempty"`
}

// Workflow is a named, ordered sequence of steps bound to one agent and one
// trigger.
type Workflow struct {
	ID          WorkflowID     `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Trigger     Trigger        `json:"trigger"`
	Agent       AgentRef       `json:"agent"`
	Steps       []WorkflowStep `json:"steps"`
	Status      WorkflowStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Validate enforces the preconditions an execution must meet before any
// state transition. Failures wrap ErrWorkflowInvalid.
func (w *Workflow) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("%w: missing id", ErrWorkflowInvalid)
	}
	if w.Name == "" {
		return fmt.Errorf("%w: missing name", ErrWorkflowInvalid)
	}
	if w.Agent.ID == "" {
		return fmt.Errorf("%w: no agent assigned", ErrWorkflowInvalid)
	}
	if len(w.Steps) == 0 {
		return fmt.Errorf("%w: workflow has no steps", ErrWorkflowInvalid)
	}
	for i, step := range w.Steps {
		if step.Action.Type == "" {
			return fmt.Errorf("%w: step %d (%s) has no action type", ErrWorkflowInvalid, i, step.ID)
		}
		if step.Action.Action == "" {
			return fmt.Errorf("%w: step %d (%s) has no action", ErrWorkflowInvalid, i, step.ID)
		}
	}
	return nil
}

// ExecutionLog is append-only; the engine is the sole writer.
type ExecutionLog struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// WorkflowExecution is one runtime instance of a workflow run. Status moves
// pending → running → {completed | failed} and never reverses; the persisted
// record is immutable once terminal.
type WorkflowExecution struct {
	ID          ExecutionID     `json:"id"`
	WorkflowID  WorkflowID      `json:"workflow_id"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Input       map[string]any  `json:"input"`
	Output      map[string]any  `json:"output,omitempty"`
	Errors      []string        `json:"errors,omitempty"`
	Logs        []ExecutionLog  `json:"logs"`
}

// Terminal reports whether the execution reached a final state.
func (e *WorkflowExecution) Terminal() bool {
	return e.Status == ExecutionStatusCompleted || e.Status == ExecutionStatusFailed
}

// AppendLog adds one log entry.
func (e *WorkflowExecution) AppendLog(level LogLevel, message string, data map[string]any) {
	e.Logs = append(e.Logs, ExecutionLog{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Data:      data,
	})
}
