package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/qsargate/config"
	"github.com/jonwraymond/qsargate/observe"
	"github.com/jonwraymond/qsargate/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP gateway",
		Long: `Starts the HTTP server exposing POST /mcp, the health endpoints and
/metrics. Stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load(cmd.Context(), configPath(cmd))
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				settings.App.ListenAddr, _ = cmd.Flags().GetString("addr")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, settings)
		},
	}
	cmd.Flags().String("addr", ":8000", "listen address (overrides app.listen_addr)")
	return cmd
}

func serve(ctx context.Context, settings *config.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	obs, err := observe.NewObserver(ctx, settings.ObserveConfig(serviceName, version))
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	gw, err := newGateway(ctx, settings, obs)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:            settings.App.ListenAddr,
		Handler:         gw.handler,
		ShutdownTimeout: settings.App.ShutdownTimeout,
		Logger:          obs.Logger(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if settings.Security.WatchPermissions && settings.Security.ToolPermissionsFile != "" {
		g.Go(func() error { return gw.permissions.Watch(gctx) })
	}
	return g.Wait()
}
