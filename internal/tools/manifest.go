// ABOUTME: Tool manifest parsing and validation for plugin directories
// ABOUTME: Manifests are accepted as YAML or TOML and decoded into one struct

package tools

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Manifest filenames tried inside each plugin directory, in order.
var manifestNames = []string{"manifest.yaml", "manifest.yml", "manifest.toml"}

// ImplementationRef points at the statically bound callable for a tool.
type ImplementationRef struct {
	Module   string `yaml:"module" toml:"module" json:"module"`
	Function string `yaml:"function" toml:"function" json:"function"`
}

// Key returns the implementation table key for this reference.
func (r ImplementationRef) Key() string {
	return r.Module + "." + r.Function
}

// Manifest is the declarative description of one internal tool plugin.
type Manifest struct {
	Name                 string             `yaml:"name" toml:"name" json:"name"`
	Description          string             `yaml:"description" toml:"description" json:"description,omitempty"`
	ArgumentsSchema      map[string]any     `yaml:"arguments_schema" toml:"arguments_schema" json:"arguments_schema"`
	IsInternalConfigOnly bool               `yaml:"is_internal_config_only" toml:"is_internal_config_only" json:"is_internal_config_only,omitempty"`
	ImplementationRef    *ImplementationRef `yaml:"implementation_ref" toml:"implementation_ref" json:"implementation_ref,omitempty"`
}

// Validate checks the manifest invariants: name and arguments_schema are
// always required; a non-config-only tool must name its implementation.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("manifest missing name")
	}
	if m.ArgumentsSchema == nil {
		return fmt.Errorf("manifest %q missing arguments_schema", m.Name)
	}
	if !m.IsInternalConfigOnly {
		if m.ImplementationRef == nil {
			return fmt.Errorf("manifest %q missing implementation_ref", m.Name)
		}
		if m.ImplementationRef.Module == "" || m.ImplementationRef.Function == "" {
			return fmt.Errorf("manifest %q has incomplete implementation_ref", m.Name)
		}
	}
	return nil
}

// readManifest locates and parses the manifest file in a plugin directory.
// Returns os.ErrNotExist if the directory has no manifest file.
func readManifest(dir string) (*Manifest, error) {
	for _, name := range manifestNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		var m Manifest
		if filepath.Ext(name) == ".toml" {
			if err := toml.Unmarshal(data, &m); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(data, &m); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
		return &m, nil
	}
	return nil, os.ErrNotExist
}
