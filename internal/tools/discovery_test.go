// ABOUTME: Tests for plugin manifest discovery
// ABOUTME: Covers valid/invalid manifests, both file formats, and skip-on-error

package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlugin(t *testing.T, root, dir, filename, content string) {
	t.Helper()
	pluginDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(pluginDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, filename), []byte(content), 0644))
}

func TestDiscover_ValidManifest(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "echo", "manifest.yaml", `
name: echo
description: "Echo the arguments back"
arguments_schema:
  type: object
implementation_ref:
  module: m
  function: f
`)

	defs, err := NewDiscoveryEngine(root, nil).Discover()
	require.NoError(t, err)
	require.Len(t, defs, 1)

	assert.Equal(t, "echo", defs[0].Name)
	assert.False(t, defs[0].ConfigOnly)
	assert.Equal(t, SourceInternal, defs[0].Source)
	require.NotNil(t, defs[0].Impl)
	assert.Equal(t, "m.f", defs[0].Impl.Key())
}

func TestDiscover_TOMLManifest(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "clock", "manifest.toml", `
name = "clock"
description = "Report the current time"

[arguments_schema]
type = "object"

[implementation_ref]
module = "clock"
function = "now"
`)

	defs, err := NewDiscoveryEngine(root, nil).Discover()
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "clock", defs[0].Name)
	assert.Equal(t, "clock.now", defs[0].Impl.Key())
}

func TestDiscover_SkipsInvalidManifest(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "good", "manifest.yaml", `
name: good
arguments_schema:
  type: object
implementation_ref:
  module: m
  function: f
`)
	// Missing arguments_schema: skipped, scan continues.
	writePlugin(t, root, "bad", "manifest.yaml", `
name: bad
implementation_ref:
  module: m
  function: f
`)

	defs, err := NewDiscoveryEngine(root, nil).Discover()
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "good", defs[0].Name)
}

func TestDiscover_ConfigOnlyWithoutImpl(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "settings", "manifest.yaml", `
name: settings
arguments_schema:
  type: object
is_internal_config_only: true
`)

	defs, err := NewDiscoveryEngine(root, nil).Discover()
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.True(t, defs[0].ConfigOnly)
	assert.Nil(t, defs[0].Impl)
}

func TestDiscover_NonConfigOnlyRequiresImpl(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "broken", "manifest.yaml", `
name: broken
arguments_schema:
  type: object
`)

	defs, err := NewDiscoveryEngine(root, nil).Discover()
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestDiscover_DuplicatesNotDeduplicated(t *testing.T) {
	root := t.TempDir()
	manifest := `
name: twin
arguments_schema:
  type: object
implementation_ref:
  module: m
  function: f
`
	writePlugin(t, root, "a", "manifest.yaml", manifest)
	writePlugin(t, root, "b", "manifest.yaml", manifest)

	defs, err := NewDiscoveryEngine(root, nil).Discover()
	require.NoError(t, err)
	// Discovery surfaces duplicates as-is; the registry resolves them.
	assert.Len(t, defs, 2)
}

func TestDiscover_MissingRoot(t *testing.T) {
	defs, err := NewDiscoveryEngine(filepath.Join(t.TempDir(), "absent"), nil).Discover()
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestDiscover_IgnoresFilesAndEmptyDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))

	defs, err := NewDiscoveryEngine(root, nil).Discover()
	require.NoError(t, err)
	assert.Empty(t, defs)
}
