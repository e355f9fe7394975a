// Package api provides an HTTP API server for capturing and recalling memories.
package api

import "time"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// DefaultBudget is the token budget used when a recall request leaves
	// budget_tokens unset.
	DefaultBudget int

	// RequestTimeout bounds each request. Zero leaves requests unbounded.
	RequestTimeout time.Duration

	// MCP mounts the MCP tools at /mcp.
	MCP bool
}
