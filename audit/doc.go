// Package audit records security-relevant events: authorization
// decisions, tool executions and HTTP requests.
//
// Events go to registered sinks. With no sinks registered, events are
// written to the structured logger so they are never silently dropped.
package audit
