// ABOUTME: Connection manager owning the lifecycle of tool server connections
// ABOUTME: Drives the disconnected, connecting, connected and error states in the store

package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/meshworks/toolmesh/internal/store"
)

// activeConn pairs a live client with the configuration it was dialed with,
// so reconciliation can tell a config edit from a cosmetic record change.
type activeConn struct {
	client    Client
	configSig string
}

// Manager tracks one live Client per connected server and keeps each
// server's persisted status in step with the real connection state. A failed
// connection stays in the error state until the next explicit connect or
// reconcile; there is no automatic retry.
type Manager struct {
	servers    store.ServerStore
	connectors Connectors
	log        *slog.Logger

	mu    sync.Mutex
	conns map[string]*activeConn
}

// NewManager creates a connection manager over the given server store.
func NewManager(servers store.ServerStore, connectors Connectors, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		servers:    servers,
		connectors: connectors,
		log:        log,
		conns:      make(map[string]*activeConn),
	}
}

func configSig(rec *store.ServerRecord) string {
	return rec.Transport + "|" + string(rec.Details)
}

// Connect establishes a connection for the server with the given id. It is
// idempotent: connecting an already-connected server is a no-op. Validation
// and dial failures are recorded on the server row as the error state.
func (m *Manager) Connect(ctx context.Context, serverID string) error {
	m.mu.Lock()
	if _, ok := m.conns[serverID]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	rec, err := m.servers.GetServer(ctx, serverID)
	if err != nil {
		return fmt.Errorf("loading server %s: %w", serverID, err)
	}
	if !rec.IsActive {
		return fmt.Errorf("server %q is not active", rec.Name)
	}

	details, err := ParseDetails(rec.Transport, rec.Details)
	if err != nil {
		m.setStatus(ctx, serverID, store.StatusError, err.Error())
		return fmt.Errorf("server %q: %w", rec.Name, err)
	}

	m.setStatus(ctx, serverID, store.StatusConnecting, "")

	connector, err := m.connectorFor(details.Transport())
	if err != nil {
		m.setStatus(ctx, serverID, store.StatusError, err.Error())
		return fmt.Errorf("server %q: %w", rec.Name, err)
	}

	client, err := connector.Connect(ctx, rec.Name, details)
	if err != nil {
		m.setStatus(ctx, serverID, store.StatusError, err.Error())
		return fmt.Errorf("connecting to %q: %w", rec.Name, err)
	}

	m.mu.Lock()
	if _, ok := m.conns[serverID]; ok {
		// A concurrent connect won the race. Keep the first connection.
		m.mu.Unlock()
		if err := client.Close(); err != nil {
			m.log.Warn("closing redundant connection failed", "server", rec.Name, "error", err)
		}
		return nil
	}
	m.conns[serverID] = &activeConn{client: client, configSig: configSig(rec)}
	m.mu.Unlock()

	client.OnClose(func(cause error) {
		m.handleClose(serverID, client, cause)
	})

	// The close handler may have fired already for a connection that died
	// during setup. Only report connected while this client is still the
	// registered one, so the error status it recorded is not overwritten.
	m.mu.Lock()
	current, ok := m.conns[serverID]
	live := ok && current.client == client
	m.mu.Unlock()
	if !live {
		return fmt.Errorf("connecting to %q: connection closed during setup", rec.Name)
	}

	m.setStatus(ctx, serverID, store.StatusConnected, "")
	m.log.Info("connected to tool server", "server", rec.Name, "transport", rec.Transport)
	return nil
}

// ConnectAll connects every active server concurrently. One server's failure
// never blocks or aborts the others; failures land in each server's
// persisted status and the joined error is returned for reporting.
func (m *Manager) ConnectAll(ctx context.Context) error {
	records, err := m.servers.ListActiveServers(ctx)
	if err != nil {
		return fmt.Errorf("listing active servers: %w", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(records))
	for i, rec := range records {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Connect(ctx, rec.ID); err != nil {
				m.log.Warn("tool server connection failed", "server", rec.Name, "error", err)
				errs[i] = err
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Disconnect tears down the connection for a server if one exists and always
// leaves the server disconnected with the given reason as last_error. A
// close failure is logged, never propagated.
func (m *Manager) Disconnect(ctx context.Context, serverID, reason string) error {
	m.mu.Lock()
	conn, ok := m.conns[serverID]
	if ok {
		// Remove before Close so the close handler sees a stale client
		// and leaves the status alone.
		delete(m.conns, serverID)
	}
	m.mu.Unlock()

	if ok {
		if err := conn.client.Close(); err != nil {
			m.log.Warn("closing connection failed", "server_id", serverID, "error", err)
		}
	}
	m.setStatus(ctx, serverID, store.StatusDisconnected, reason)
	return nil
}

// ReconcileServer applies a record mutation to the live connection set:
// deactivation disconnects, a transport or details change reconnects with
// the new configuration, and an active record without a connection gets one.
// Cosmetic changes leave an up-to-date connection alone.
func (m *Manager) ReconcileServer(ctx context.Context, rec *store.ServerRecord) error {
	m.mu.Lock()
	conn, connected := m.conns[rec.ID]
	configChanged := connected && conn.configSig != configSig(rec)
	m.mu.Unlock()

	if !rec.IsActive {
		if connected {
			return m.Disconnect(ctx, rec.ID, "server deactivated")
		}
		return nil
	}

	if configChanged {
		if err := m.Disconnect(ctx, rec.ID, "configuration changed"); err != nil {
			return err
		}
		return m.Connect(ctx, rec.ID)
	}

	if !connected {
		return m.Connect(ctx, rec.ID)
	}
	return nil
}

// Reconcile aligns every live connection with the registry: connections for
// deleted servers are torn down and each remaining record goes through
// ReconcileServer.
func (m *Manager) Reconcile(ctx context.Context) error {
	records, err := m.servers.ListServers(ctx)
	if err != nil {
		return fmt.Errorf("listing servers: %w", err)
	}

	known := make(map[string]bool, len(records))
	for _, rec := range records {
		known[rec.ID] = true
	}

	m.mu.Lock()
	var removed []string
	for id := range m.conns {
		if !known[id] {
			removed = append(removed, id)
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, id := range removed {
		if err := m.Disconnect(ctx, id, "server removed"); err != nil {
			errs = append(errs, err)
		}
	}
	for _, rec := range records {
		if err := m.ReconcileServer(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClientFor returns the live client for a server, if connected.
func (m *Manager) ClientFor(serverID string) (Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[serverID]
	if !ok {
		return nil, false
	}
	return conn.client, true
}

// ConnectedServers returns the ids of all connected servers, sorted.
func (m *Manager) ConnectedServers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Status is a point-in-time snapshot of one server's connection state. Live
// distinguishes a real connection from a stale persisted status.
type Status struct {
	ServerID  string
	Name      string
	Transport string
	State     string
	LastError string
	Live      bool
}

// Statuses returns a snapshot of every registered server, sorted by name.
func (m *Manager) Statuses(ctx context.Context) ([]Status, error) {
	records, err := m.servers.ListServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing servers: %w", err)
	}

	m.mu.Lock()
	live := make(map[string]bool, len(m.conns))
	for id := range m.conns {
		live[id] = true
	}
	m.mu.Unlock()

	statuses := make([]Status, 0, len(records))
	for _, rec := range records {
		statuses = append(statuses, Status{
			ServerID:  rec.ID,
			Name:      rec.Name,
			Transport: rec.Transport,
			State:     rec.Status,
			LastError: rec.LastError,
			Live:      live[rec.ID],
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses, nil
}

// Shutdown closes every connection and marks the servers disconnected.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]*activeConn)
	m.mu.Unlock()

	for id, conn := range conns {
		if err := conn.client.Close(); err != nil {
			m.log.Warn("closing connection failed", "server_id", id, "error", err)
		}
		m.setStatus(ctx, id, store.StatusDisconnected, "shutdown")
	}
}

// handleClose reacts to a transport-level connection loss. The status only
// moves to error if the closing client is still the registered one, so a
// disconnect or replacement connection is never clobbered.
func (m *Manager) handleClose(serverID string, client Client, cause error) {
	m.mu.Lock()
	current, ok := m.conns[serverID]
	if !ok || current.client != client {
		m.mu.Unlock()
		return
	}
	delete(m.conns, serverID)
	m.mu.Unlock()

	msg := "connection lost"
	if cause != nil {
		msg = cause.Error()
	}
	m.log.Warn("tool server connection lost", "server_id", serverID, "error", msg)
	m.setStatus(context.Background(), serverID, store.StatusError, msg)
}

func (m *Manager) connectorFor(transport string) (Connector, error) {
	switch transport {
	case store.TransportWebSocket:
		if m.connectors.WebSocket != nil {
			return m.connectors.WebSocket, nil
		}
	case store.TransportCommand:
		if m.connectors.Command != nil {
			return m.connectors.Command, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedTransport, transport)
}

func (m *Manager) setStatus(ctx context.Context, serverID, status, lastError string) {
	if err := m.servers.SetServerStatus(ctx, serverID, status, lastError); err != nil {
		m.log.Error("persisting server status failed", "server_id", serverID, "status", status, "error", err)
	}
}
