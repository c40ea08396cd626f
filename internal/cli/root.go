// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package cli wires together the g8r root Cobra command and global CLI
// options.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"g8r/internal/cli/commands"
)

// NewRootCommand constructs the g8r root Cobra command, wiring the serve
// and stack subcommands.
func NewRootCommand() *cobra.Command {
	version := os.Getenv("G8R_VERSION")
	if version == "" {
		version = "0.0.0-dev"
	}

	cmd := &cobra.Command{
		Use:           "g8r",
		Short:         "g8r – infrastructure-automation control plane",
		Long:          "g8r evaluates declarative stacks of rosters and duties and drives them toward their desired state across pluggable cloud backends.",
		SilenceUsage:  true, // don't dump usage on user errors
		SilenceErrors: true, // centralize error printing in main()
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	// Version command – simple and explicit.
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of g8r",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "g8r version %s\n", version)
		},
	})

	// Subcommands - keep registrations in lexicographic order by .Use to
	// ensure deterministic help output.
	cmd.AddCommand(commands.NewServeCommand())
	cmd.AddCommand(commands.NewStackCommand())

	return cmd
}
