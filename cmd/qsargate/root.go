package main

import (
	"github.com/spf13/cobra"
)

const serviceName = "qsargate"

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   serviceName,
		Short: "MCP gateway for the QSAR Toolbox",
		Long: `qsargate exposes QSAR Toolbox operations as MCP tools over JSON-RPC.
Callers authenticate with OIDC bearer tokens; each tool call is checked
against a role to tool permission table before it reaches the Toolbox.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to a YAML settings file")

	root.AddCommand(newServeCmd(), newValidateCmd(), newVersionCmd())
	return root
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
