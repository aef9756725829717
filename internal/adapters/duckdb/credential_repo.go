package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pontoonhq/pontoon/internal/core/domain"
)

// GetTokens returns the stored credential for (user, tool), or
// domain.ErrNoTokens when none exists.
func (r *Repository) GetTokens(ctx context.Context, userID string, tool domain.ToolID) (*domain.OAuthTokens, error) {
	query := `SELECT tokens FROM credentials WHERE user_id = ? AND tool = ?`
	var raw string
	err := r.db.QueryRowContext(ctx, query, userID, tool).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNoTokens
	}
	if err != nil {
		return nil, err
	}
	var tokens domain.OAuthTokens
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tokens for %s/%s: %w", userID, tool, err)
	}
	return &tokens, nil
}

// PutTokens replaces any prior credential for the pair; the primary key
// guarantees at most one active token set per (user, tool).
func (r *Repository) PutTokens(ctx context.Context, userID string, tool domain.ToolID, tokens *domain.OAuthTokens) error {
	raw, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}
	query := `
	INSERT INTO credentials (user_id, tool, tokens) VALUES (?, ?, ?)
	ON CONFLICT (user_id, tool) DO UPDATE SET tokens = excluded.tokens;
	`
	_, err = r.db.ExecContext(ctx, query, userID, tool, string(raw))
	return err
}

func (r *Repository) DeleteTokens(ctx context.Context, userID string, tool domain.ToolID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = ? AND tool = ?`, userID, tool)
	return err
}
