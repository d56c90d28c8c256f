// Package tools provides internal tool discovery and static binding.
//
// # Overview
//
// Internal tools are declared by manifest files, one per plugin directory
// under the configured plugin root. A manifest names the tool, describes its
// argument schema, and references a compiled-in implementation by module and
// function name.
//
// # Manifests
//
// A plugin directory contains manifest.yaml, manifest.yml or manifest.toml:
//
//	name: echo
//	description: "Echo the arguments back"
//	arguments_schema:
//	  type: object
//	implementation_ref:
//	  module: echo
//	  function: run
//
// Config-only tools set is_internal_config_only: true and omit the
// implementation reference; they appear in the catalog but are not callable.
//
// # Static Binding
//
// Implementations are compiled into the binary and registered in an
// Implementations table keyed by "module.function". BuildRegistry binds
// discovered definitions against that table at startup, so a manifest
// pointing at a missing implementation is a startup warning rather than a
// first-invocation failure.
//
// # Streaming Tools
//
// A streaming tool returns a ChunkStream: a lazy, finite, non-restartable
// sequence of tagged chunks (progress, partial, final) pulled one at a time
// by a single consumer. The streaming execution protocol in internal/stream
// consumes these.
package tools
