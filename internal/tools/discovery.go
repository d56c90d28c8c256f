// ABOUTME: Plugin directory scanning for internal tool manifests
// ABOUTME: Invalid manifests are skipped with a warning, never abort the scan

package tools

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// DiscoveryEngine scans a plugin root directory for tool manifests.
type DiscoveryEngine struct {
	root   string
	logger *slog.Logger
}

// NewDiscoveryEngine creates a discovery engine for the given plugin root.
func NewDiscoveryEngine(root string, logger *slog.Logger) *DiscoveryEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscoveryEngine{
		root:   root,
		logger: logger.With("component", "discovery"),
	}
}

// Discover scans every immediate subdirectory of the root for a manifest
// file and returns the valid tool definitions. Entries that fail to parse
// or validate are skipped with a warning. Duplicate names are surfaced
// as-is; collision policy belongs to the catalog.
//
// A missing root directory yields an empty result, not an error, so a fresh
// install without plugins starts cleanly.
func (e *DiscoveryEngine) Discover() ([]Definition, error) {
	entries, err := os.ReadDir(e.root)
	if os.IsNotExist(err) {
		e.logger.Warn("plugin root does not exist, no internal tools discovered", "root", e.root)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading plugin root %s: %w", e.root, err)
	}

	var defs []Definition
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(e.root, entry.Name())

		manifest, err := readManifest(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			e.logger.Warn("skipping plugin with unreadable manifest", "dir", dir, "error", err)
			continue
		}

		if err := manifest.Validate(); err != nil {
			e.logger.Warn("skipping invalid tool manifest", "dir", dir, "error", err)
			continue
		}

		defs = append(defs, Definition{
			Name:            manifest.Name,
			Description:     manifest.Description,
			ArgumentsSchema: manifest.ArgumentsSchema,
			ConfigOnly:      manifest.IsInternalConfigOnly,
			Impl:            manifest.ImplementationRef,
			Source:          SourceInternal,
		})
	}

	e.logger.Info("tool discovery complete", "root", e.root, "tools", len(defs))
	return defs, nil
}
