// Package config handles configuration loading for toolmesh.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${TOOLMESH_DB_PATH}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	servers:
//	  connect_timeout: "10s"
//	  call_timeout: "60s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Database:
//
//	database:
//	  path: "/var/lib/toolmesh/toolmesh.db"
//
// Plugin discovery:
//
//	plugins:
//	  dir: "/var/lib/toolmesh/plugins"
//
// Egress policy:
//
//	policy:
//	  restricted_egress: false
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
