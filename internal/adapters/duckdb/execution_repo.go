package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pontoonhq/pontoon/internal/core/domain"
)

// SaveExecution upserts the full execution record. The engine calls it at
// creation, on the running transition and once more with the terminal state,
// so the persisted record is always the latest truth.
func (r *Repository) SaveExecution(ctx context.Context, exec *domain.WorkflowExecution) error {
	inputJSON, err := json.Marshal(exec.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}
	outputJSON, err := json.Marshal(exec.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	errorsJSON, err := json.Marshal(exec.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}
	logsJSON, err := json.Marshal(exec.Logs)
	if err != nil {
		return fmt.Errorf("failed to marshal logs: %w", err)
	}

	query := `
	INSERT INTO executions (id, workflow_id, status, started_at, completed_at, input, output, errors, logs)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		status = excluded.status,
		completed_at = excluded.completed_at,
		output = excluded.output,
		errors = excluded.errors,
		logs = excluded.logs;
	`

	_, err = r.db.ExecContext(ctx, query,
		exec.ID, exec.WorkflowID, exec.Status, exec.StartedAt, exec.CompletedAt,
		string(inputJSON), string(outputJSON), string(errorsJSON), string(logsJSON),
	)
	return err
}

func (r *Repository) GetExecution(ctx context.Context, id domain.ExecutionID) (*domain.WorkflowExecution, error) {
	query := `SELECT id, workflow_id, status, started_at, completed_at, input, output, errors, logs FROM executions WHERE id = ?`
	exec, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrExecutionNotFound, id)
	}
	return exec, err
}

// ListExecutions returns records newest first; an empty workflowID lists all.
func (r *Repository) ListExecutions(ctx context.Context, workflowID domain.WorkflowID) ([]domain.WorkflowExecution, error) {
	query := `SELECT id, workflow_id, status, started_at, completed_at, input, output, errors, logs FROM executions`
	args := []any{}
	if workflowID != "" {
		query += ` WHERE workflow_id = ?`
		args = append(args, workflowID)
	}
	query += ` ORDER BY started_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []domain.WorkflowExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

func scanExecution(row rowScanner) (*domain.WorkflowExecution, error) {
	var exec domain.WorkflowExecution
	var idStr, wfIDStr, statusStr string
	var inputJSON, outputJSON, errorsJSON, logsJSON string

	if err := row.Scan(&idStr, &wfIDStr, &statusStr, &exec.StartedAt, &exec.CompletedAt, &inputJSON, &outputJSON, &errorsJSON, &logsJSON); err != nil {
		return nil, err
	}
	exec.ID = domain.ExecutionID(idStr)
	exec.WorkflowID = domain.WorkflowID(wfIDStr)
	exec.Status = domain.ExecutionStatus(statusStr)

	if err := json.Unmarshal([]byte(inputJSON), &exec.Input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input for execution %s: %w", idStr, err)
	}
	if err := json.Unmarshal([]byte(outputJSON), &exec.Output); err != nil {
		return nil, fmt.Errorf("failed to unmarshal output for execution %s: %w", idStr, err)
	}
	if err := json.Unmarshal([]byte(errorsJSON), &exec.Errors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal errors for execution %s: %w", idStr, err)
	}
	if err := json.Unmarshal([]byte(logsJSON), &exec.Logs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal logs for execution %s: %w", idStr, err)
	}
	return &exec, nil
}
