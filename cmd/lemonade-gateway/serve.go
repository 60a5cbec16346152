package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lemonade-sdk/lemonade-gateway/internal/config"
)

func newServeCmd() *cobra.Command {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags := config.RegisterServeFlags(fs, false)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}
	cmd.Flags().AddFlagSet(fs)
	return cmd
}

func runServe(cmd *cobra.Command, flags *config.ServeFlags) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	core := config.LoadCore()
	gw, err := newGateway(log, flags, core)
	if err != nil {
		return fmt.Errorf("initializing gateway: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", flags.Host, flags.Port)
	httpServer := &http.Server{Addr: addr, Handler: gw.server}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("gateway listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful HTTP shutdown failed")
	}
	return gw.router.Shutdown(shutdownCtx)
}
