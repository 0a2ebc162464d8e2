// Package health reports the state of the gateway's dependencies.
//
// Checkers cover the identity provider key set (JWKSChecker), the tool
// permission table (PermissionsChecker) and QSAR Toolbox reachability
// (ToolboxChecker). An Aggregator runs them concurrently and Mount exposes
// the results:
//
//	GET /healthz  liveness, always 200
//	GET /readyz   200 unless a check is unhealthy
//	GET /health   JSON detail for every check
package health
