package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/qsargate/auth"
	"github.com/jonwraymond/qsargate/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check settings and the permission table",
		Long: `Loads settings the same way serve does, then checks general settings,
OIDC settings and the tool permission table. Exits non-zero on any problem.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load(cmd.Context(), configPath(cmd))
			if err != nil {
				return err
			}
			return validate(cmd, settings)
		},
	}
}

func validate(cmd *cobra.Command, s *config.Settings) error {
	out := cmd.OutOrStdout()
	var errs []error

	if err := s.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := s.ValidateOIDC(); err != nil {
		errs = append(errs, err)
	}

	table, err := auth.LoadPermissionFile(s.Security.ToolPermissionsFile)
	if err != nil {
		errs = append(errs, err)
	} else {
		source := s.Security.ToolPermissionsFile
		if source == "" {
			source = "built-in table"
		}
		fmt.Fprintf(out, "permissions: %d roles from %s\n", table.Len(), source)
	}

	if s.Security.BypassAuth {
		fmt.Fprintln(out, "warning: authentication bypass is enabled")
	} else {
		fmt.Fprintf(out, "oidc: issuer=%s audience=%s jwks=%s\n",
			s.Security.OIDCIssuer, s.Security.OIDCAudience, s.JWKSURL())
	}
	fmt.Fprintf(out, "toolbox: %s\n", s.Toolbox.BaseURL)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("settings invalid:\n%w", err)
	}
	fmt.Fprintln(out, "ok")
	return nil
}
