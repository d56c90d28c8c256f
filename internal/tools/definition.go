// ABOUTME: Tool definition type shared by the internal and external catalogs
// ABOUTME: Source tags where a definition came from (internal or a server id)

package tools

import "strings"

// SourceInternal marks definitions discovered from local plugin manifests.
const SourceInternal = "internal"

const externalSourcePrefix = "external:"

// ExternalSource returns the source tag for a tool served by the given
// external server.
func ExternalSource(serverID string) string {
	return externalSourcePrefix + serverID
}

// ServerIDFromSource extracts the server id from an external source tag.
// Returns false for internal definitions.
func ServerIDFromSource(source string) (string, bool) {
	if !strings.HasPrefix(source, externalSourcePrefix) {
		return "", false
	}
	return strings.TrimPrefix(source, externalSourcePrefix), true
}

// Definition is one entry of the served tool catalog.
type Definition struct {
	Name            string
	Description     string
	ArgumentsSchema map[string]any
	ConfigOnly      bool
	Impl            *ImplementationRef // nil for config-only and external tools
	Source          string             // SourceInternal or ExternalSource(id)
}

// Internal reports whether the definition came from local discovery.
func (d Definition) Internal() bool {
	return d.Source == SourceInternal
}
