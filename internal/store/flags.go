// ABOUTME: Tool activation flag persistence for internal tools
// ABOUTME: Flags survive rediscovery so admin-set deactivation persists across restarts

package store

import (
	"context"
	"fmt"
	"time"
)

// EnsureToolFlags creates a default-active flag row for every name not yet
// tracked. Existing flags are never overwritten, preserving admin-set
// deactivation across restarts. Idempotent.
func (s *SQLiteStore) EnsureToolFlags(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tool_flags (name, is_active, created_at, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("preparing flag insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, name := range names {
		if _, err := stmt.ExecContext(ctx, name, now, now); err != nil {
			return fmt.Errorf("ensuring flag for %q: %w", name, err)
		}
	}

	return tx.Commit()
}

// GetToolFlags returns the activation state of every tracked tool name.
func (s *SQLiteStore) GetToolFlags(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, is_active FROM tool_flags`)
	if err != nil {
		return nil, fmt.Errorf("querying tool flags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	flags := make(map[string]bool)
	for rows.Next() {
		var name string
		var active bool
		if err := rows.Scan(&name, &active); err != nil {
			return nil, fmt.Errorf("scanning tool flag: %w", err)
		}
		flags[name] = active
	}
	return flags, rows.Err()
}

// SetToolActive updates the activation flag for a tool name.
// Returns ErrNotFound if the name is not tracked.
func (s *SQLiteStore) SetToolActive(ctx context.Context, name string, active bool) error {
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := s.db.ExecContext(ctx, `
		UPDATE tool_flags SET is_active = ?, updated_at = ? WHERE name = ?
	`, active, now, name)
	if err != nil {
		return fmt.Errorf("updating tool flag: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating tool flag: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
