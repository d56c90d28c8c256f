// ABOUTME: Tagged-union connection details, one variant per transport type
// ABOUTME: Parsing validates shape before any connection attempt

package mcp

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"

	"github.com/meshworks/toolmesh/internal/store"
)

// Details is the validated, transport-specific connection configuration of
// a server record.
type Details interface {
	// Transport returns the transport type this variant belongs to.
	Transport() string
	// Loopback reports whether the endpoint is reachable without leaving
	// the local host. Used by the egress policy.
	Loopback() bool
}

// WebSocketDetails configures the websocket transport.
type WebSocketDetails struct {
	URL string `json:"url"`
}

// Transport implements Details.
func (d WebSocketDetails) Transport() string { return store.TransportWebSocket }

// Loopback implements Details. The URL host is classified without DNS
// resolution: only literal loopback addresses and "localhost" count.
func (d WebSocketDetails) Loopback() bool {
	u, err := url.Parse(d.URL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// CommandDetails configures the spawned-command transport.
type CommandDetails struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// Transport implements Details.
func (d CommandDetails) Transport() string { return store.TransportCommand }

// Loopback implements Details. A spawned command never leaves the host.
func (d CommandDetails) Loopback() bool { return true }

// ParseDetails validates raw connection details against the transport type
// and returns the typed variant. Returns an error wrapping ErrInvalidDetails
// for shape violations and ErrUnsupportedTransport for the reserved stdio
// transport and unknown types.
func ParseDetails(transport string, raw json.RawMessage) (Details, error) {
	switch transport {
	case store.TransportWebSocket:
		var d WebSocketDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDetails, err)
		}
		u, err := url.Parse(d.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing url: %v", ErrInvalidDetails, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return nil, fmt.Errorf("%w: url %q must use a ws or wss scheme", ErrInvalidDetails, d.URL)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("%w: url %q has no host", ErrInvalidDetails, d.URL)
		}
		return d, nil

	case store.TransportCommand:
		var d CommandDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDetails, err)
		}
		if d.Command == "" {
			return nil, fmt.Errorf("%w: command is required", ErrInvalidDetails)
		}
		return d, nil

	case store.TransportStdio:
		// Reserved: reported as unsupported at connect time, never
		// silently ignored.
		return nil, fmt.Errorf("%w: stdio", ErrUnsupportedTransport)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTransport, transport)
	}
}
