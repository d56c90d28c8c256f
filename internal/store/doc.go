// Package store provides persistent storage for toolmesh using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with specialized
// interfaces:
//
//   - ServerStore: external tool server records and their health fields
//   - FlagStore: activation flags for internal tools
//   - ResultStore: durable results produced by streaming invocations
//
// SQLiteStore implements all interfaces in a single struct, allowing easy
// composition while maintaining clear interface boundaries.
//
// # Data Models
//
//   - ServerRecord: transport type, connection details, credential hash,
//     active flag and health fields (status, last_seen, last_error)
//   - ToolFlag: per-tool activation flag, default active, preserved across
//     rediscovery
//   - ToolResult: one persisted artifact per streamed execution, keyed by
//     execution id
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateServer: server name already taken
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewSQLiteStore(":memory:") or a t.TempDir() path for tests with real
// SQLite.
package store
