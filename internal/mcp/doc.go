// ABOUTME: Package doc for the mcp connection layer
// ABOUTME: Transports, the JSON-RPC codec and the connection manager

// Package mcp connects toolmesh to external tool servers.
//
// A server's persisted record names a transport and carries raw connection
// details; ParseDetails turns those into a typed Details value. A Connector
// dials one transport kind and returns a Client, the minimal surface the
// rest of the system uses: ListTools, CallTool and a close notification.
//
// The Manager owns every live Client and is the only writer of server
// status. Connects are idempotent, failures are isolated per server, and a
// lost connection moves the server to the error state without automatic
// retry.
package mcp
