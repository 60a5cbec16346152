package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"context"

	"github.com/lemonade-sdk/lemonade-gateway/internal/config"
)

func newRunCmd() *cobra.Command {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags := config.RegisterServeFlags(fs, true)

	cmd := &cobra.Command{
		Use:   "run MODEL",
		Short: "Start the gateway server and immediately load MODEL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], flags)
		},
	}
	cmd.Flags().AddFlagSet(fs)
	return cmd
}

func runRun(cmd *cobra.Command, modelName string, flags *config.ServeFlags) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	core := config.LoadCore()
	gw, err := newGateway(log, flags, core)
	if err != nil {
		return fmt.Errorf("initializing gateway: %w", err)
	}

	opts := flags.RecipeOptions()
	sup, err := gw.router.LoadModel(ctx, modelName, opts, false)
	if err != nil {
		return fmt.Errorf("loading %s: %w", modelName, err)
	}
	cmd.Printf("Model %s is ready at %s\n", modelName, sup.BaseURL())

	if flags.SaveOptions {
		if err := gw.catalog.SaveOptions(modelName, sup.Recipe(), opts); err != nil {
			log.WithError(err).Warn("failed to persist recipe options")
		}
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
