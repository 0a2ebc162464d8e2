// Package cache provides bounded, TTL-based caching of read-only tool
// results.
//
// MemoryCache is an LRU (hashicorp/golang-lru) with a per-entry expiry.
// Keys are derived from the tool name and a SHA-256 of the canonical JSON
// of the arguments, so argument order never changes the key. Middleware
// caches only tools tagged read_only and never caches errors.
package cache
