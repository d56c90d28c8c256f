// ABOUTME: Package doc for the orchestration service
// ABOUTME: Composition root tying discovery, connections, catalog and routing together

// Package service composes the toolmesh subsystems behind one facade.
//
// A Service owns the connection manager, the merged catalog, the invocation
// router and the streaming executor. Initialize runs the startup sequence
// exactly once; everything after that is safe for concurrent use.
package service
