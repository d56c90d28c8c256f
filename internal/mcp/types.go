// ABOUTME: Client and connector abstractions for external tool servers
// ABOUTME: Transports produce Client handles consumed by the connection manager

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrInvalidDetails indicates malformed or incomplete connection details.
// Validation failures are never attempted on the wire.
var ErrInvalidDetails = errors.New("invalid connection details")

// ErrUnsupportedTransport indicates a transport type this layer does not
// implement (currently stdio, which is reserved).
var ErrUnsupportedTransport = errors.New("unsupported transport")

// ErrNotConnected indicates the server has no active connection.
var ErrNotConnected = errors.New("server not connected")

// RemoteTool describes a tool reported by an external server's list call.
type RemoteTool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// CloseHandler is invoked exactly once when a client's transport closes.
// err is nil for an orderly close and non-nil for a runtime failure.
type CloseHandler func(err error)

// Client is a live connection to one external tool server. A Client may be
// used for arbitrarily many concurrent calls; the transport implementation
// is responsible for multiplexing or serializing them.
type Client interface {
	ListTools(ctx context.Context) ([]RemoteTool, error)
	CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
	OnClose(fn CloseHandler)
	Close() error
}

// Connector dials one transport type and returns a connected, initialized
// Client.
type Connector interface {
	Connect(ctx context.Context, serverName string, details Details) (Client, error)
}

// Connectors groups the supported transport connectors.
type Connectors struct {
	WebSocket Connector
	Command   Connector
}

// DefaultConnectors returns production connectors for the websocket and
// command transports.
func DefaultConnectors(connectTimeout time.Duration) Connectors {
	return Connectors{
		WebSocket: newWebSocketConnector(connectTimeout),
		Command:   newCommandConnector(connectTimeout),
	}
}
