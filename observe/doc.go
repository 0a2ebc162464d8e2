// Package observe provides the gateway's telemetry: a JSON structured
// logger with field redaction, OpenTelemetry tracing and metrics, and
// middleware that instruments tool execution.
//
// Components take a Logger by injection and fall back to NopLogger, so
// nothing in the gateway writes to a global logger.
package observe
