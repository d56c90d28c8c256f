// ABOUTME: Store interfaces and data types for toolmesh persistence
// ABOUTME: Defines ServerRecord, ToolFlag, ToolResult and the store interfaces

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateServer is returned when creating a server whose name is taken
var ErrDuplicateServer = errors.New("server already exists")

// Transport type constants for ServerRecord.Transport
const (
	TransportWebSocket = "websocket"
	TransportCommand   = "command"
	TransportStdio     = "stdio"
)

// Server status constants for ServerRecord.Status
const (
	StatusDisconnected = "disconnected"
	StatusConnecting   = "connecting"
	StatusConnected    = "connected"
	StatusError        = "error"
)

// ServerRecord is the durable configuration for one external tool server.
// Status, LastSeen and LastError are mutated exclusively by the connection
// manager; everything else is owned by the admin collaborator.
type ServerRecord struct {
	ID             string
	Name           string
	Description    string
	Transport      string          // websocket, command, stdio
	Details        json.RawMessage // transport-specific connection details
	CredentialHash string          // one-way hash, never the raw secret
	IsActive       bool
	Status         string
	LastSeen       *time.Time // set only on successful connect
	LastError      string     // cleared on successful connect
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ToolFlag is the persisted activation flag for one internal tool name.
// A discovered tool whose flag is false is excluded from the served catalog.
type ToolFlag struct {
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToolResult is the durable artifact produced by a streaming invocation's
// final chunk. ExecutionID is the idempotency key: at most one result row
// exists per execution.
type ToolResult struct {
	ID          string
	ExecutionID string
	UserID      string
	SessionID   string
	ToolName    string
	Content     string
	Sources     []ResultSource
	CreatedAt   time.Time
}

// ResultSource is citation metadata attached to a final chunk.
type ResultSource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ServerStore defines persistence operations for external server records.
type ServerStore interface {
	CreateServer(ctx context.Context, rec *ServerRecord) error
	GetServer(ctx context.Context, id string) (*ServerRecord, error)
	UpdateServer(ctx context.Context, rec *ServerRecord) error
	DeleteServer(ctx context.Context, id string) error
	ListServers(ctx context.Context) ([]*ServerRecord, error)
	ListActiveServers(ctx context.Context) ([]*ServerRecord, error)

	// SetServerStatus upserts status and last_error for a server, and stamps
	// last_seen when the new status is connected.
	SetServerStatus(ctx context.Context, id, status, lastError string) error
}

// FlagStore defines persistence operations for internal tool activation flags.
type FlagStore interface {
	// EnsureToolFlags creates a default-active flag for every name not yet
	// tracked. Existing flags are never overwritten.
	EnsureToolFlags(ctx context.Context, names []string) error
	GetToolFlags(ctx context.Context) (map[string]bool, error)
	SetToolActive(ctx context.Context, name string, active bool) error
}

// ResultStore defines persistence operations for streamed tool results.
type ResultStore interface {
	// SaveToolResult persists a result exactly once per execution id and
	// returns the canonical row id, which may belong to an earlier write.
	SaveToolResult(ctx context.Context, result *ToolResult) (string, error)
	GetToolResultByExecution(ctx context.Context, executionID string) (*ToolResult, error)
}
