// Package rpc serves the MCP JSON-RPC 2.0 endpoint over HTTP.
//
// One request object per POST; batches are rejected. Lifecycle methods
// (initialize, initialized, shutdown, exit) need no credentials. Every
// other method authenticates the request first and then dispatches to the
// tool pipeline.
//
// Failures are answered with a JSON-RPC error object and an HTTP status
// that mirrors it:
//
//	-32700 parse error            400
//	-32600 invalid request        400
//	-32601 method/tool not found  404
//	-32602 invalid params         400
//	-32603 internal error         500
//	-32000 unauthenticated        401
//	-32001 forbidden              403
//	-32002 tool execution failed  200
//	-32003 token expired          401
//	-32004 auth unavailable       503
//
// A request without an id is a notification. A successful notification is
// answered with 204 and no body.
package rpc
