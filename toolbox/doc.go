// Package toolbox is an HTTP client for the OECD QSAR Toolbox WebAPI.
//
// Calls are split into two profiles. Light calls (metadata, searches,
// discovery lists) get a short timeout and few attempts; heavy calls
// (endpoint data, profiling, metabolism) get a long timeout and run behind
// a concurrency cap. Both profiles share one circuit breaker, so a Toolbox
// outage fails fast for every caller.
//
// Responses are decoded as JSON when the content type says so and returned
// as strings otherwise. Non-2xx responses surface as
// *resilience.StatusError.
package toolbox
