// Command trop is the CLI frame around the reservation engine: it
// parses arguments, loads layered configuration, opens the registry,
// and formats results. Per spec §1, none of the allocation logic
// lives here — this file and its siblings only dispatch to
// internal/ops, internal/cleanup, and internal/migrate.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func newRootCmd() *cobra.Command {
	var a app

	root := &cobra.Command{
		Use:           "trop",
		Short:         "Local port reservation registry",
		Long:          "trop remembers which TCP/UDP ports are in use by which project directories, so multi-checkout development gets stable, collision-free port numbers.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "path to the registry database (default $HOME/.trop/registry.db)")
	root.PersistentFlags().StringSliceVar(&a.configPaths, "config", nil, "configuration file(s), lowest precedence first (default searches standard locations)")

	root.AddCommand(newReserveCmd(&a))
	root.AddCommand(newReleaseCmd(&a))
	root.AddCommand(newListCmd(&a))
	root.AddCommand(newCleanupCmd(&a))
	root.AddCommand(newMigrateCmd(&a))
	root.AddCommand(newDaemonCmd(&a))

	return root
}

func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

func printf(format string, args ...any) {
	fmt.Fprintf(color.Output, format, args...)
}
