package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pontoonhq/pontoon/internal/core/domain"
	"github.com/pontoonhq/pontoon/internal/core/ports"
)

type memWorkflows struct {
	mu sync.Mutex
	m  map[domain.WorkflowID]*domain.Workflow
}

func newMemWorkflows(wfs ...*domain.Workflow) *memWorkflows {
	r := &memWorkflows{m: make(map[domain.WorkflowID]*domain.Workflow)}
	for _, wf := range wfs {
		r.m[wf.ID] = wf
	}
	return r
}

func (r *memWorkflows) SaveWorkflow(_ context.Context, wf *domain.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[wf.ID] = wf
	return nil
}

func (r *memWorkflows) GetWorkflow(_ context.Context, id domain.WorkflowID) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.m[id]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return wf, nil
}

func (r *memWorkflows) ListWorkflows(_ context.Context) ([]domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Workflow, 0, len(r.m))
	for _, wf := range r.m {
		out = append(out, *wf)
	}
	return out, nil
}

type memExecutions struct {
	mu    sync.Mutex
	m     map[domain.ExecutionID]domain.WorkflowExecution
	saves int
}

func newMemExecutions() *memExecutions {
	return &memExecutions{m: make(map[domain.ExecutionID]domain.WorkflowExecution)}
}

func (r *memExecutions) SaveExecution(_ context.Context, exec *domain.WorkflowExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[exec.ID] = *exec
	r.saves++
	return nil
}

func (r *memExecutions) GetExecution(_ context.Context, id domain.ExecutionID) (*domain.WorkflowExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exec, ok := r.m[id]
	if !ok {
		return nil, domain.ErrExecutionNotFound
	}
	return &exec, nil
}

func (r *memExecutions) ListExecutions(_ context.Context, workflowID domain.WorkflowID) ([]domain.WorkflowExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.WorkflowExecution{}
	for _, exec := range r.m {
		if workflowID == "" || exec.WorkflowID == workflowID {
			out = append(out, exec)
		}
	}
	return out, nil
}

func testWorkflow(steps ...domain.WorkflowStep) *domain.Workflow {
	return &domain.Workflow{
		ID:      "wf-1",
		Name:    "nightly digest",
		Trigger: domain.Trigger{Type: domain.TriggerManual},
		Agent:   domain.AgentRef{ID: "a1", Name: "scout", Role: "researcher"},
		Steps:   steps,
		Status:  domain.WorkflowStatusActive,
	}
}

func newTestEngine(t *testing.T, wfs *memWorkflows, adapters map[domain.ToolID]ports.ToolAdapter) (*WorkflowEngine, *memExecutions) {
	t.Helper()
	execs := newMemExecutions()
	router, _ := newTestRouter(newMemRateCache(), adapters)
	agents := NewMemoryAgentDirectory(domain.AgentProfile{ID: "a1", Name: "scout", Role: "researcher"})
	bus := NewEventBus(testLogger())
	return NewWorkflowEngine(testLogger(), wfs, execs, router, agents, bus), execs
}

func TestEngineExecutesStepsInOrder(t *testing.T) {
	var order []string
	adapter := &stubAdapter{
		caps: stubCaps("slack", nil, false), connected: true,
		fetchFn: func(map[string]any) *domain.ActionResult {
			order = append(order, "fetch")
			return &domain.ActionResult{Success: true, Data: map[string]any{"messages": []any{"m1"}}}
		},
		sendFn: func(params map[string]any) *domain.ActionResult {
			order = append(order, "send")
			// The fetch output must be visible to the later step.
			assert.NotNil(t, params["messages"])
			return &domain.ActionResult{Success: true, Data: map[string]any{"posted": true}}
		},
	}

	wf := testWorkflow(
		domain.WorkflowStep{ID: "s1", Action: domain.StepAction{
			Type: domain.StepTypeIntegration, Action: "fetch", Target: "slack",
		}},
		domain.WorkflowStep{ID: "s2", Action: domain.StepAction{
			Type: domain.StepTypeIntegration, Action: "send", Target: "slack",
		}},
	)
	engine, execs := newTestEngine(t, newMemWorkflows(wf), map[domain.ToolID]ports.ToolAdapter{"slack": adapter})

	exec, err := engine.Execute(context.Background(), wf.ID, map[string]any{"channel": "#ops"}, "u1")

	require.NoError(t, err)
	assert.Equal(t, []string{"fetch", "send"}, order)
	assert.Equal(t, domain.ExecutionStatusCompleted, exec.Status)
	require.NotNil(t, exec.CompletedAt)

	// Output is the final merged context.
	assert.Equal(t, "#ops", exec.Output["channel"])
	assert.Equal(t, true, exec.Output["posted"])
	assert.NotNil(t, exec.Output["messages"])

	// Input stays as recorded.
	assert.Equal(t, map[string]any{"channel": "#ops"}, exec.Input)

	stored, err := execs.GetExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, stored.Status)
	assert.NotEmpty(t, stored.Logs)
}

func TestEngineShallowMergeOverwrites(t *testing.T) {
	adapter := &stubAdapter{
		caps: stubCaps("slack", nil, false), connected: true,
		fetchFn: func(map[string]any) *domain.ActionResult {
			return &domain.ActionResult{Success: true, Data: map[string]any{"value": "fresh"}}
		},
	}
	wf := testWorkflow(domain.WorkflowStep{ID: "s1", Action: domain.StepAction{
		Type: domain.StepTypeIntegration, Action: "fetch", Target: "slack",
	}})
	engine, _ := newTestEngine(t, newMemWorkflows(wf), map[domain.ToolID]ports.ToolAdapter{"slack": adapter})

	exec, err := engine.Execute(context.Background(), wf.ID, map[string]any{"value": "stale"}, "u1")

	require.NoError(t, err)
	assert.Equal(t, "fresh", exec.Output["value"])
	assert.Equal(t, "stale", exec.Input["value"])
}

func TestEngineValidationFailureStaysPending(t *testing.T) {
	wf := testWorkflow() // no steps
	engine, execs := newTestEngine(t, newMemWorkflows(wf), nil)

	exec, err := engine.Execute(context.Background(), wf.ID, nil, "u1")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrWorkflowInvalid)
	require.NotNil(t, exec)
	assert.Equal(t, domain.ExecutionStatusPending, exec.Status)

	stored, getErr := execs.GetExecution(context.Background(), exec.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.ExecutionStatusPending, stored.Status)

	// The validation diagnostic must be in the durable log.
	found := false
	for _, log := range stored.Logs {
		if log.Level == domain.LogError {
			found = true
		}
	}
	assert.True(t, found)
}

func TestEngineStepFailureRecordsAndPropagates(t *testing.T) {
	adapter := &stubAdapter{
		caps: stubCaps("github", nil, false), connected: true,
		sendFn: func(map[string]any) *domain.ActionResult {
			return &domain.ActionResult{Success: false, Error: &domain.IntegrationError{
				Code: domain.CodeUpstreamError, Message: "api down",
			}}
		},
	}
	wf := testWorkflow(
		domain.WorkflowStep{ID: "s1", Action: domain.StepAction{
			Type: domain.StepTypeIntegration, Action: "send", Target: "github",
		}},
		domain.WorkflowStep{ID: "s2", Action: domain.StepAction{
			Type: domain.StepTypeAgent, Action: "summarize",
		}},
	)
	engine, execs := newTestEngine(t, newMemWorkflows(wf), map[domain.ToolID]ports.ToolAdapter{"github": adapter})

	exec, err := engine.Execute(context.Background(), wf.ID, nil, "u1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "api down")
	assert.Equal(t, domain.ExecutionStatusFailed, exec.Status)
	require.NotEmpty(t, exec.Errors)
	require.NotNil(t, exec.CompletedAt)

	stored, getErr := execs.GetExecution(context.Background(), exec.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.ExecutionStatusFailed, stored.Status)
}

func TestEngineUnknownWorkflow(t *testing.T) {
	engine, _ := newTestEngine(t, newMemWorkflows(), nil)

	_, err := engine.Execute(context.Background(), "missing", nil, "u1")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
}

func TestEngineUnresolvableAgentFails(t *testing.T) {
	wf := testWorkflow(domain.WorkflowStep{ID: "s1", Action: domain.StepAction{
		Type: domain.StepTypeAgent, Action: "summarize",
	}})
	wf.Agent.ID = "ghost"
	engine, _ := newTestEngine(t, newMemWorkflows(wf), nil)

	exec, err := engine.Execute(context.Background(), wf.ID, nil, "u1")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
	assert.Equal(t, domain.ExecutionStatusFailed, exec.Status)
}

func TestEngineAgentSteps(t *testing.T) {
	wf := testWorkflow(
		domain.WorkflowStep{ID: "s1", Action: domain.StepAction{
			Type: domain.StepTypeAgent, Action: "analyze",
		}},
		domain.WorkflowStep{ID: "s2", Action: domain.StepAction{
			Type: domain.StepTypeAgent, Action: "summarize",
		}},
	)
	engine, _ := newTestEngine(t, newMemWorkflows(wf), nil)

	exec, err := engine.Execute(context.Background(), wf.ID, map[string]any{"topic": "deploys"}, "u1")

	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, exec.Status)
	assert.NotNil(t, exec.Output["analysis"])
	assert.Contains(t, exec.Output["summary"], "topic=deploys")
}

func TestEngineCancelStopsBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	adapter := &stubAdapter{
		caps: stubCaps("slack", nil, false), connected: true,
		fetchFn: func(map[string]any) *domain.ActionResult {
			cancel() // simulate a cancel arriving mid-run
			return &domain.ActionResult{Success: true, Data: map[string]any{"ok": true}}
		},
	}
	wf := testWorkflow(
		domain.WorkflowStep{ID: "s1", Action: domain.StepAction{
			Type: domain.StepTypeIntegration, Action: "fetch", Target: "slack",
		}},
		domain.WorkflowStep{ID: "s2", Action: domain.StepAction{
			Type: domain.StepTypeAgent, Action: "summarize",
		}},
	)
	engine, _ := newTestEngine(t, newMemWorkflows(wf), map[domain.ToolID]ports.ToolAdapter{"slack": adapter})

	exec, err := engine.Execute(ctx, wf.ID, nil, "u1")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExecutionCanceled)
	assert.Equal(t, domain.ExecutionStatusFailed, exec.Status)
	assert.Equal(t, 1, adapter.fetchCalls)
}

func TestEngineCancelUnknownIsNoop(t *testing.T) {
	engine, _ := newTestEngine(t, newMemWorkflows(), nil)
	engine.Cancel("never-started")
}

func TestEngineWritesLifecycleLog(t *testing.T) {
	wf := testWorkflow(domain.WorkflowStep{ID: "s1", Action: domain.StepAction{
		Type: domain.StepTypeAgent, Action: "summarize",
	}})
	engine, _ := newTestEngine(t, newMemWorkflows(wf), nil)

	exec, err := engine.Execute(context.Background(), wf.ID, nil, "u1")
	require.NoError(t, err)

	messages := make([]string, 0, len(exec.Logs))
	for _, log := range exec.Logs {
		messages = append(messages, log.Message)
	}
	assert.Contains(t, messages, "starting workflow execution")
	assert.Contains(t, messages, "step s1 completed")
	assert.Contains(t, messages, "workflow execution completed")
}
