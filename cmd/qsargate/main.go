// Command qsargate serves the QSAR Toolbox over MCP behind OIDC
// authentication and role-based tool permissions.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
