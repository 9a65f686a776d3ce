package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-micropub/pkg/micropub/config"
)

// NewServeCommand runs the HTTP server until SIGINT or SIGTERM
func NewServeCommand() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the micropub server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile, _ := cmd.Flags().GetString("config")

			opts := []config.Option{config.WithFile(configFile), config.WithEnv()}
			if port != "" {
				opts = append(opts, config.WithPort(port))
			}
			serverConfig, err := config.Load(opts...)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			logger := serverConfig.NewLogger(os.Stderr)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := serverConfig.Build(ctx, logger)
			if err != nil {
				return fmt.Errorf("failed to build server: %w", err)
			}
			defer srv.Close()

			httpServer := &http.Server{
				Addr:              ":" + serverConfig.Port,
				Handler:           srv.Router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("micropub server starting",
					"port", serverConfig.Port,
					"env", serverConfig.Environment,
					"base_url", serverConfig.BaseURL,
					"database", serverConfig.DatabaseType,
					"storage", serverConfig.Storage.Type,
				)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}

			logger.Info("server exited")
			return nil
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "port to listen on (overrides PORT)")
	return cmd
}
