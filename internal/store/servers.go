// ABOUTME: Server record persistence for external tool server configurations
// ABOUTME: CRUD plus the status/last_seen/last_error upsert used by the connection manager

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateServer creates a new server record.
// Returns ErrDuplicateServer if a server with the same name exists.
func (s *SQLiteStore) CreateServer(ctx context.Context, rec *ServerRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.Status == "" {
		rec.Status = StatusDisconnected
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (
			id, name, description, transport, details, credential_hash,
			is_active, status, last_seen, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.Name,
		rec.Description,
		rec.Transport,
		string(rec.Details),
		rec.CredentialHash,
		rec.IsActive,
		rec.Status,
		nullTime(rec.LastSeen),
		rec.LastError,
		rec.CreatedAt.Format(time.RFC3339),
		rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("server %q: %w", rec.Name, ErrDuplicateServer)
		}
		return fmt.Errorf("inserting server: %w", err)
	}

	s.logger.Debug("created server record", "id", rec.ID, "name", rec.Name, "transport", rec.Transport)
	return nil
}

// GetServer retrieves a server record by ID.
// Returns ErrNotFound if the server doesn't exist.
func (s *SQLiteStore) GetServer(ctx context.Context, id string) (*ServerRecord, error) {
	row := s.db.QueryRowContext(ctx, serverSelect+` WHERE id = ?`, id)
	return scanServer(row)
}

// UpdateServer updates the admin-owned fields of a server record.
// Status fields are left untouched; use SetServerStatus for those.
func (s *SQLiteStore) UpdateServer(ctx context.Context, rec *ServerRecord) error {
	rec.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE servers
		SET name = ?, description = ?, transport = ?, details = ?,
		    credential_hash = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`,
		rec.Name,
		rec.Description,
		rec.Transport,
		string(rec.Details),
		rec.CredentialHash,
		rec.IsActive,
		rec.UpdatedAt.Format(time.RFC3339),
		rec.ID,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("server %q: %w", rec.Name, ErrDuplicateServer)
		}
		return fmt.Errorf("updating server: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating server: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteServer removes a server record.
// Returns ErrNotFound if the server doesn't exist.
func (s *SQLiteStore) DeleteServer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting server: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting server: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListServers returns all server records ordered by name.
func (s *SQLiteStore) ListServers(ctx context.Context) ([]*ServerRecord, error) {
	return s.queryServers(ctx, serverSelect+` ORDER BY name`)
}

// ListActiveServers returns all server records with is_active=true, ordered by name.
func (s *SQLiteStore) ListActiveServers(ctx context.Context) ([]*ServerRecord, error) {
	return s.queryServers(ctx, serverSelect+` WHERE is_active = 1 ORDER BY name`)
}

// SetServerStatus upserts the status and last_error of a server record.
// When status is connected, last_seen is stamped and last_error cleared
// regardless of the lastError argument.
// Returns ErrNotFound if the server doesn't exist.
func (s *SQLiteStore) SetServerStatus(ctx context.Context, id, status, lastError string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	var res sql.Result
	var err error
	if status == StatusConnected {
		res, err = s.db.ExecContext(ctx, `
			UPDATE servers
			SET status = ?, last_error = '', last_seen = ?, updated_at = ?
			WHERE id = ?
		`, status, now, now, id)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE servers
			SET status = ?, last_error = ?, updated_at = ?
			WHERE id = ?
		`, status, lastError, now, id)
	}
	if err != nil {
		return fmt.Errorf("updating server status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating server status: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.logger.Debug("server status updated", "id", id, "status", status, "error", lastError)
	return nil
}

const serverSelect = `
	SELECT id, name, description, transport, details, credential_hash,
	       is_active, status, last_seen, last_error, created_at, updated_at
	FROM servers`

func (s *SQLiteStore) queryServers(ctx context.Context, query string, args ...any) ([]*ServerRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying servers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var servers []*ServerRecord
	for rows.Next() {
		rec, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, rec)
	}
	return servers, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanServer(row rowScanner) (*ServerRecord, error) {
	var rec ServerRecord
	var details string
	var lastSeen sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&rec.ID,
		&rec.Name,
		&rec.Description,
		&rec.Transport,
		&details,
		&rec.CredentialHash,
		&rec.IsActive,
		&rec.Status,
		&lastSeen,
		&rec.LastError,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning server: %w", err)
	}

	rec.Details = []byte(details)
	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
		rec.LastSeen = &t
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &rec, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
