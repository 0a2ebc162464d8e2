package health

import "errors"

var (
	// ErrDependencyDown marks a result for a dependency the gateway cannot use.
	ErrDependencyDown = errors.New("health: dependency unavailable")

	// ErrCheckTimeout marks a check that did not finish within its budget.
	ErrCheckTimeout = errors.New("health: check timed out")

	// ErrUnknownCheck is returned when no checker is registered under a name.
	ErrUnknownCheck = errors.New("health: unknown check")
)
