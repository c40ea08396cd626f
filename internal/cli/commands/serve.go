// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

package commands

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

	"g8r/internal/logging"
)

const shutdownGrace = 10 * time.Second

// NewServeCommand returns the `g8r serve` command: starts the management
// HTTP API and every registered stack's reconciliation loop, running until
// interrupted.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the g8r control plane: HTTP API and stack reconciliation loops",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			application, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer application.cleanup()

			if err := application.stacks.Start(ctx); err != nil {
				return fmt.Errorf("starting stack manager: %w", err)
			}
			defer application.stacks.Stop()

			server := &http.Server{Addr: application.cfg.HTTPAddr, Handler: application.api.Router()}

			errCh := make(chan error, 1)
			go func() {
				application.log.Info("listening", logging.NewField("addr", application.cfg.HTTPAddr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
					return
				}
				errCh <- nil
			}()

			select {
			case <-ctx.Done():
				application.log.Info("shutting down")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer shutdownCancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutting down HTTP server: %w", err)
				}
				return <-errCh
			case err := <-errCh:
				return err
			}
		},
	}
	return cmd
}
