// Package server assembles the gateway's HTTP surface.
//
// NewRouter mounts the MCP endpoint, the health routes and the metrics
// scrape endpoint behind request id, recovery, security header, CORS and
// request audit middleware. Server wraps http.Server with a context-driven
// lifecycle and a bounded graceful shutdown.
package server
