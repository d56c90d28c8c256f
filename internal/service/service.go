// ABOUTME: Top-level orchestration wiring the store, connections, catalog and router
// ABOUTME: Owns idempotent initialization and the public invoke surface

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/meshworks/toolmesh/internal/bus"
	"github.com/meshworks/toolmesh/internal/catalog"
	"github.com/meshworks/toolmesh/internal/config"
	"github.com/meshworks/toolmesh/internal/mcp"
	"github.com/meshworks/toolmesh/internal/router"
	"github.com/meshworks/toolmesh/internal/store"
	"github.com/meshworks/toolmesh/internal/stream"
	"github.com/meshworks/toolmesh/internal/tools"
)

// Store is the combined persistence surface the service needs.
type Store interface {
	store.ServerStore
	store.FlagStore
	store.ResultStore
}

// Service is the orchestration layer over tool discovery, server
// connections and invocation routing. Construct with New, then call
// Initialize exactly once before serving (repeat calls are no-ops).
type Service struct {
	cfg   *config.Config
	store Store
	log   *slog.Logger

	manager  *mcp.Manager
	catalog  *catalog.Catalog
	router   *router.Router
	executor *stream.Executor

	initOnce sync.Once
	initErr  error
}

// New wires a service over the given store and event bus publisher using
// the production transport connectors.
func New(cfg *config.Config, st Store, publisher bus.Publisher, log *slog.Logger) *Service {
	return NewWithConnectors(cfg, st, publisher, mcp.DefaultConnectors(cfg.Servers.ConnectTimeout), log)
}

// NewWithConnectors is New with explicit transport connectors.
func NewWithConnectors(cfg *config.Config, st Store, publisher bus.Publisher, connectors mcp.Connectors, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	manager := mcp.NewManager(st, connectors, log)
	return &Service{
		cfg:      cfg,
		store:    st,
		log:      log,
		manager:  manager,
		executor: stream.NewExecutor(st, publisher, log),
	}
}

// Initialize discovers internal tools, seeds activation flags and connects
// every active server. Individual server failures are recorded in the
// registry rather than failing startup; only discovery and persistence
// problems are fatal. Initialize is idempotent: repeated calls return the
// first outcome without repeating side effects.
func (s *Service) Initialize(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = s.initialize(ctx)
	})
	return s.initErr
}

func (s *Service) initialize(ctx context.Context) error {
	engine := tools.NewDiscoveryEngine(s.cfg.Plugins.Dir, s.log)
	defs, err := engine.Discover()
	if err != nil {
		return fmt.Errorf("discovering internal tools: %w", err)
	}

	registry := tools.BuildRegistry(defs, tools.Builtins(), s.log)
	s.catalog = catalog.New(registry, s.store, s.manager, s.log)
	if err := s.catalog.EnsureActivationFlags(ctx); err != nil {
		return fmt.Errorf("seeding activation flags: %w", err)
	}

	s.router = router.New(s.catalog, s.store, s.cfg.Policy.RestrictedEgress, s.cfg.Servers.CallTimeout, s.log)

	if err := s.manager.ConnectAll(ctx); err != nil {
		s.log.Warn("one or more tool servers failed to connect", "error", err)
	}

	s.log.Info("toolmesh initialized",
		"internal_tools", len(registry.Names()),
		"connected_servers", len(s.manager.ConnectedServers()))
	return nil
}

// InvokeResult is the caller-facing outcome of one invocation. Streamed
// invocations deliver their output through the event bus; Result carries the
// direct response otherwise.
type InvokeResult struct {
	ExecutionID string
	Streamed    bool
	Result      json.RawMessage
}

// Invoke routes and executes one tool call. Streaming tools are pumped to
// the event bus before Invoke returns; their durable result, if any, is
// retrievable by execution id afterwards.
func (s *Service) Invoke(ctx context.Context, userID, sessionID, toolName string, args json.RawMessage) (InvokeResult, error) {
	if s.router == nil {
		return InvokeResult{}, fmt.Errorf("service not initialized")
	}

	inv := tools.NewInvocation(userID, sessionID)
	outcome, err := s.router.Invoke(ctx, inv, toolName, args)
	if err != nil {
		return InvokeResult{}, err
	}

	if outcome.Streaming() {
		if err := s.executor.Run(ctx, inv, toolName, outcome.Stream); err != nil {
			return InvokeResult{}, err
		}
		return InvokeResult{ExecutionID: inv.ExecutionID, Streamed: true}, nil
	}
	return InvokeResult{ExecutionID: inv.ExecutionID, Result: outcome.Result}, nil
}

// ListTools returns the merged catalog of invokable tools.
func (s *Service) ListTools(ctx context.Context) ([]catalog.Entry, error) {
	if s.catalog == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	return s.catalog.ListAvailable(ctx)
}

// SetToolActive toggles an internal tool's activation flag.
func (s *Service) SetToolActive(ctx context.Context, name string, active bool) error {
	return s.store.SetToolActive(ctx, name, active)
}

// GetResult loads the durable result of a streamed execution.
func (s *Service) GetResult(ctx context.Context, executionID string) (*store.ToolResult, error) {
	return s.store.GetToolResultByExecution(ctx, executionID)
}

// ServerInput is the caller-supplied description of an external server.
type ServerInput struct {
	Name        string
	Description string
	Transport   string
	Details     json.RawMessage
	Credential  string
}

// RegisterServer validates and persists a new external server. The server
// starts disconnected and inactive servers are never dialed.
func (s *Service) RegisterServer(ctx context.Context, in ServerInput) (*store.ServerRecord, error) {
	if _, err := mcp.ParseDetails(in.Transport, in.Details); err != nil {
		return nil, err
	}
	hash, err := store.HashCredential(in.Credential)
	if err != nil {
		return nil, fmt.Errorf("hashing credential: %w", err)
	}

	rec := &store.ServerRecord{
		ID:             uuid.New().String(),
		Name:           in.Name,
		Description:    in.Description,
		Transport:      in.Transport,
		Details:        in.Details,
		CredentialHash: hash,
		IsActive:       true,
		Status:         store.StatusDisconnected,
	}
	if err := s.store.CreateServer(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Info("registered tool server", "server", rec.Name, "transport", rec.Transport)
	return rec, nil
}

// UpdateServer validates and persists changes to an existing server, then
// reconciles connections so edits take effect immediately.
func (s *Service) UpdateServer(ctx context.Context, rec *store.ServerRecord) error {
	if _, err := mcp.ParseDetails(rec.Transport, rec.Details); err != nil {
		return err
	}
	if err := s.store.UpdateServer(ctx, rec); err != nil {
		return err
	}
	return s.manager.ReconcileServer(ctx, rec)
}

// RemoveServer disconnects and deletes a server.
func (s *Service) RemoveServer(ctx context.Context, id string) error {
	if err := s.manager.Disconnect(ctx, id, "server removed"); err != nil {
		return err
	}
	return s.store.DeleteServer(ctx, id)
}

// ListServers returns every registered server with its persisted status.
func (s *Service) ListServers(ctx context.Context) ([]*store.ServerRecord, error) {
	return s.store.ListServers(ctx)
}

// ServerStatuses returns a connection state snapshot for every server.
func (s *Service) ServerStatuses(ctx context.Context) ([]mcp.Status, error) {
	return s.manager.Statuses(ctx)
}

// ConnectServer connects one server on demand.
func (s *Service) ConnectServer(ctx context.Context, id string) error {
	return s.manager.Connect(ctx, id)
}

// DisconnectServer disconnects one server on demand.
func (s *Service) DisconnectServer(ctx context.Context, id, reason string) error {
	return s.manager.Disconnect(ctx, id, reason)
}

// Reconcile aligns live connections with the current registry state.
func (s *Service) Reconcile(ctx context.Context) error {
	return s.manager.Reconcile(ctx)
}

// Shutdown closes every server connection and releases the executor.
func (s *Service) Shutdown(ctx context.Context) {
	s.manager.Shutdown(ctx)
	s.executor.Close()
	s.log.Info("toolmesh shut down")
}
