// ABOUTME: Persisted tool result records produced by streaming invocations
// ABOUTME: Execution id is the idempotency key; at most one row per execution

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SaveToolResult persists a result record exactly once per execution id.
// A second write for the same execution id is a no-op that returns the id
// of the existing row.
func (s *SQLiteStore) SaveToolResult(ctx context.Context, result *ToolResult) (string, error) {
	if result.ExecutionID == "" {
		return "", fmt.Errorf("saving tool result: execution id is required")
	}
	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	var sourcesJSON *string
	if len(result.Sources) > 0 {
		b, err := json.Marshal(result.Sources)
		if err != nil {
			return "", fmt.Errorf("marshaling sources: %w", err)
		}
		str := string(b)
		sourcesJSON = &str
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_results (
			id, execution_id, user_id, session_id, tool_name, content, sources, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id) DO NOTHING
	`,
		result.ID,
		result.ExecutionID,
		result.UserID,
		result.SessionID,
		result.ToolName,
		result.Content,
		sourcesJSON,
		result.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("inserting tool result: %w", err)
	}

	// Read back the canonical id; it may belong to an earlier write.
	var id string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM tool_results WHERE execution_id = ?`, result.ExecutionID,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("reading tool result id: %w", err)
	}

	return id, nil
}

// GetToolResultByExecution retrieves the result row for an execution id.
// Returns ErrNotFound if no result was persisted for that execution.
func (s *SQLiteStore) GetToolResultByExecution(ctx context.Context, executionID string) (*ToolResult, error) {
	var result ToolResult
	var sources sql.NullString
	var createdAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, execution_id, user_id, session_id, tool_name, content, sources, created_at
		FROM tool_results
		WHERE execution_id = ?
	`, executionID).Scan(
		&result.ID,
		&result.ExecutionID,
		&result.UserID,
		&result.SessionID,
		&result.ToolName,
		&result.Content,
		&sources,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning tool result: %w", err)
	}

	if sources.Valid {
		if err := json.Unmarshal([]byte(sources.String), &result.Sources); err != nil {
			return nil, fmt.Errorf("unmarshaling sources: %w", err)
		}
	}
	if result.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &result, nil
}
