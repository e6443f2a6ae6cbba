package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/websoft9/trop/internal/reservation"
)

func newReleaseCmd(a *app) *cobra.Command {
	var (
		tag    string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "release [path]",
		Short: "Release the reservation held at a project directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var arg string
			if len(args) == 1 {
				arg = args[0]
			}
			path, resolution, err := resolvePath(arg)
			if err != nil {
				return err
			}

			var key reservation.Key
			if tag != "" {
				key, err = reservation.WithTag(path, tag, resolution)
			} else {
				key, err = reservation.NoTag(path, resolution)
			}
			if err != nil {
				return err
			}

			plan, err := a.planner.PlanRelease(a.store, key)
			if err != nil {
				return err
			}

			result, err := a.runPlan(cmd.Context(), plan, dryRun, "release")
			if err != nil {
				return err
			}

			label := "released"
			if dryRun {
				label = "would release"
			}
			color.New(color.FgGreen).Printf("%s %s\n", label, key)
			return nil
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "distinguishes multiple reservations at the same path")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would happen without writing")

	return cmd
}
