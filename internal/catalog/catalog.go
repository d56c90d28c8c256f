// ABOUTME: Unified tool catalog merging internal tools with live external server tools
// ABOUTME: Applies activation flags and name collision policy, internal tools win

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meshworks/toolmesh/internal/mcp"
	"github.com/meshworks/toolmesh/internal/store"
	"github.com/meshworks/toolmesh/internal/tools"
)

// Entry is one tool as presented to callers of the catalog.
type Entry struct {
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	ArgumentsSchema map[string]any `json:"arguments_schema,omitempty"`
	Source          string         `json:"source"`
	ConfigOnly      bool           `json:"config_only,omitempty"`
}

// Resolution is the outcome of resolving a tool name for invocation. Binding
// is set for internal tools, ServerID and Client for external ones.
type Resolution struct {
	Entry    Entry
	Binding  tools.Binding
	ServerID string
	Client   mcp.Client
}

// Internal reports whether the resolved tool runs in-process.
func (r Resolution) Internal() bool {
	return r.Entry.Source == tools.SourceInternal
}

// ConnectionSource is the slice of the connection manager the catalog needs.
type ConnectionSource interface {
	ConnectedServers() []string
	ClientFor(serverID string) (mcp.Client, bool)
}

// Catalog merges the internal tool registry with the tools advertised by
// connected external servers. External listings are fetched live on every
// call so the catalog never claims tools a dead server can no longer serve;
// concurrent fetches for the same server are collapsed.
type Catalog struct {
	registry *tools.Registry
	flags    store.FlagStore
	manager  ConnectionSource
	log      *slog.Logger

	group singleflight.Group
}

// New creates a catalog over the internal registry and connection manager.
func New(registry *tools.Registry, flags store.FlagStore, manager ConnectionSource, log *slog.Logger) *Catalog {
	if log == nil {
		log = slog.Default()
	}
	return &Catalog{
		registry: registry,
		flags:    flags,
		manager:  manager,
		log:      log,
	}
}

// EnsureActivationFlags creates a default-active flag for every internal
// tool that does not have one yet. Flags set by an operator are preserved.
func (c *Catalog) EnsureActivationFlags(ctx context.Context) error {
	return c.flags.EnsureToolFlags(ctx, c.registry.Names())
}

// ListAvailable returns every invokable tool: active internal tools plus the
// live tools of every connected server. A server that fails to answer is
// skipped, so a partial catalog is still a valid catalog. On a name
// collision the internal tool wins; between external servers the first
// server in id order wins and later duplicates are omitted.
func (c *Catalog) ListAvailable(ctx context.Context) ([]Entry, error) {
	active, err := c.flags.GetToolFlags(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading tool flags: %w", err)
	}

	seen := make(map[string]string)
	var entries []Entry
	for _, def := range c.registry.Definitions() {
		if enabled, ok := active[def.Name]; ok && !enabled {
			continue
		}
		entries = append(entries, internalEntry(def))
		seen[def.Name] = tools.SourceInternal
	}

	for _, serverID := range c.manager.ConnectedServers() {
		remote, err := c.fetchTools(ctx, serverID)
		if err != nil {
			c.log.Warn("skipping tool listing for unreachable server", "server_id", serverID, "error", err)
			continue
		}
		for _, rt := range remote {
			if holder, ok := seen[rt.Name]; ok {
				c.log.Warn("omitting tool with colliding name", "tool", rt.Name, "server_id", serverID, "kept_source", holder)
				continue
			}
			entries = append(entries, externalEntry(serverID, rt))
			seen[rt.Name] = tools.ExternalSource(serverID)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Resolve maps a tool name to its invocation target using the same
// precedence as ListAvailable. Deactivated internal tools resolve as not
// found rather than falling through to an external tool of the same name.
func (c *Catalog) Resolve(ctx context.Context, name string) (Resolution, bool, error) {
	if binding, ok := c.registry.Lookup(name); ok {
		active, err := c.flags.GetToolFlags(ctx)
		if err != nil {
			return Resolution{}, false, fmt.Errorf("loading tool flags: %w", err)
		}
		if enabled, tracked := active[name]; tracked && !enabled {
			return Resolution{}, false, nil
		}
		return Resolution{
			Entry:   internalEntry(binding.Definition),
			Binding: binding,
		}, true, nil
	}

	for _, serverID := range c.manager.ConnectedServers() {
		remote, err := c.fetchTools(ctx, serverID)
		if err != nil {
			c.log.Warn("skipping unreachable server during resolve", "server_id", serverID, "error", err)
			continue
		}
		for _, rt := range remote {
			if rt.Name != name {
				continue
			}
			client, ok := c.manager.ClientFor(serverID)
			if !ok {
				continue
			}
			return Resolution{
				Entry:    externalEntry(serverID, rt),
				ServerID: serverID,
				Client:   client,
			}, true, nil
		}
	}
	return Resolution{}, false, nil
}

// listToolsTimeout bounds a detached tool listing round trip.
const listToolsTimeout = 15 * time.Second

// fetchTools lists a server's tools, collapsing concurrent calls for the
// same server into one round trip. The flight runs on a detached context so
// one caller's cancellation cannot fail everyone it is collapsed with.
func (c *Catalog) fetchTools(ctx context.Context, serverID string) ([]mcp.RemoteTool, error) {
	result, err, _ := c.group.Do(serverID, func() (any, error) {
		client, ok := c.manager.ClientFor(serverID)
		if !ok {
			return nil, mcp.ErrNotConnected
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), listToolsTimeout)
		defer cancel()
		return client.ListTools(fetchCtx)
	})
	if err != nil {
		return nil, err
	}
	remote, _ := result.([]mcp.RemoteTool)
	return remote, nil
}

func internalEntry(def tools.Definition) Entry {
	return Entry{
		Name:            def.Name,
		Description:     def.Description,
		ArgumentsSchema: def.ArgumentsSchema,
		Source:          tools.SourceInternal,
		ConfigOnly:      def.ConfigOnly,
	}
}

func externalEntry(serverID string, rt mcp.RemoteTool) Entry {
	return Entry{
		Name:            rt.Name,
		Description:     rt.Description,
		ArgumentsSchema: rt.InputSchema,
		Source:          tools.ExternalSource(serverID),
	}
}
