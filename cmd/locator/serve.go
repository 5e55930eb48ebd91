package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	gateway "github.com/lendpool/locator/internal/interfaces/http"
	"github.com/lendpool/locator/internal/ops"
)

func serveCmd() *cobra.Command {
	var initDB bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pricing service",
		Long: `serve starts the HTTP gateway plus its background machinery: the
async audit writer, the daily budget reset, and periodic upstream
probes. It drains in-flight requests on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), initDB)
		},
	}
	cmd.Flags().BoolVar(&initDB, "init-db", false, "create database tables before serving")
	return cmd
}

func runServe(ctx context.Context, initDB bool) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if initDB {
		if err := a.db.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("schema bootstrap: %w", err)
		}
		a.log.Info().Msg("database schema ensured")
	}

	trail := a.newTrail()
	trail.Start()

	svc := a.newService(trail)
	handlers := gateway.NewHandlers(svc, a.db.Health(), a.cache, a.feeds, a.metrics, version, a.log)
	server := gateway.NewServer(a.cfg.Server, handlers, a.metrics, a.log)

	jobs, err := ops.NewScheduler(a.cfg.Ops, a.feeds, a.log)
	if err != nil {
		return fmt.Errorf("ops scheduler: %w", err)
	}
	// first probe runs before traffic so /health reports real breaker state
	jobs.ProbeNow()
	jobs.Start()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()
	a.log.Info().Str("version", version).Int("port", a.cfg.Server.Port).Msg("locator serving")

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		jobs.Stop()
		return fmt.Errorf("gateway: %w", err)
	}

	grace, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownGrace())
	defer cancel()

	if err := server.Shutdown(grace); err != nil {
		a.log.Error().Err(err).Msg("gateway shutdown failed")
	}
	jobs.Stop()
	if err := trail.Close(grace); err != nil {
		a.log.Warn().Err(err).Msg("audit queue did not drain")
	}
	a.log.Info().Msg("locator stopped")
	return nil
}
