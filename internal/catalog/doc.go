// ABOUTME: Package doc for the merged tool catalog
// ABOUTME: One namespace over internal tools and connected server tools

// Package catalog presents internal and external tools as one namespace.
//
// Internal tools come from the discovery registry, gated by per-tool
// activation flags. External tools are listed live from each connected
// server, so the catalog reflects what is actually invokable right now.
// Name collisions resolve in favor of the internal tool.
package catalog
