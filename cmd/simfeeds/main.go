// simfeeds is a mock upstream for local development: it serves the
// borrow-rate, volatility and event-calendar APIs from one process, with
// runtime fault injection so the fallback chain can be exercised without
// real market data vendors. Point all three feed URLs at it.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	port := pflag.Int("port", 9090, "listen port")
	apiKey := pflag.String("api-key", "", "require this X-API-Key on feed routes when set")
	pflag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	store := newStore(*apiKey)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      store.router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("borrow", fmt.Sprintf("http://localhost:%d/api/v1/borrow/AAPL", *port)).
			Str("faults", fmt.Sprintf("http://localhost:%d/admin/faults/borrow", *port)).
			Msg("simfeeds serving")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-serverErr:
		log.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
