// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStackCommand returns the `g8r stack` command group: one-off sync and
// destroy operations outside of a running server's scheduled loops.
func NewStackCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stack",
		Short: "Manage individual stacks outside of the scheduled reconciliation loop",
	}

	cmd.AddCommand(newStackDestroyCommand())
	cmd.AddCommand(newStackSyncCommand())

	return cmd
}

func newStackSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <stack-name>",
		Short: "Run one reconciliation cycle for a stack immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer application.cleanup()

			if err := application.stacks.SyncNow(ctx, args[0]); err != nil {
				return fmt.Errorf("syncing stack %q: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stack %q synced\n", args[0])
			return nil
		},
	}
}

func newStackDestroyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <stack-name>",
		Short: "Tear down every duty a stack declares, in reverse dependency order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer application.cleanup()

			if err := application.stacks.DestroyNow(ctx, args[0]); err != nil {
				return fmt.Errorf("destroying stack %q: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stack %q destroyed\n", args[0])
			return nil
		},
	}
}
