package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pontoonhq/pontoon/internal/core/domain"
)

func (r *Repository) SaveWorkflow(ctx context.Context, wf *domain.Workflow) error {
	triggerJSON, err := json.Marshal(wf.Trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger: %w", err)
	}
	agentJSON, err := json.Marshal(wf.Agent)
	if err != nil {
		return fmt.Errorf("failed to marshal agent: %w", err)
	}
	stepsJSON, err := json.Marshal(wf.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	query := `
	INSERT INTO workflows (id, name, description, trigger, agent, steps, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		name = excluded.name,
		description = excluded.description,
		trigger = excluded.trigger,
		agent = excluded.agent,
		steps = excluded.steps,
		status = excluded.status,
		updated_at = excluded.updated_at;
	`

	_, err = r.db.ExecContext(ctx, query,
		wf.ID, wf.Name, wf.Description,
		string(triggerJSON), string(agentJSON), string(stepsJSON),
		wf.Status, wf.CreatedAt, wf.UpdatedAt,
	)
	return err
}

func (r *Repository) GetWorkflow(ctx context.Context, id domain.WorkflowID) (*domain.Workflow, error) {
	query := `SELECT id, name, description, trigger, agent, steps, status, created_at, updated_at FROM workflows WHERE id = ?`
	wf, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, id)
	}
	return wf, err
}

func (r *Repository) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	query := `SELECT id, name, description, trigger, agent, steps, status, created_at, updated_at FROM workflows ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []domain.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *wf)
	}
	return workflows, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*domain.Workflow, error) {
	var wf domain.Workflow
	var idStr, statusStr string
	var triggerJSON, agentJSON, stepsJSON string

	if err := row.Scan(&idStr, &wf.Name, &wf.Description, &triggerJSON, &agentJSON, &stepsJSON, &statusStr, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return nil, err
	}
	wf.ID = domain.WorkflowID(idStr)
	wf.Status = domain.WorkflowStatus(statusStr)

	if err := json.Unmarshal([]byte(triggerJSON), &wf.Trigger); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger for workflow %s: %w", idStr, err)
	}
	if err := json.Unmarshal([]byte(agentJSON), &wf.Agent); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent for workflow %s: %w", idStr, err)
	}
	if err := json.Unmarshal([]byte(stepsJSON), &wf.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps for workflow %s: %w", idStr, err)
	}
	return &wf, nil
}
