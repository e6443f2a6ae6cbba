package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/websoft9/trop/internal/audit"
	"github.com/websoft9/trop/internal/cleanup"
	"github.com/websoft9/trop/internal/registry"
	"github.com/websoft9/trop/internal/reservation"
)

func newCleanupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Prune and expire stale reservations",
	}

	cmd.AddCommand(newPruneCmd(a))
	cmd.AddCommand(newExpireCmd(a))
	cmd.AddCommand(newAutocleanCmd(a))

	return cmd
}

func (a *app) cleanupEngine() *cleanup.Engine {
	return &cleanup.Engine{Store: a.store, Now: registry.Now}
}

func (a *app) expireAfterDays() int {
	if a.cfg.Cleanup.ExpireAfterDays == nil {
		return 0
	}
	return *a.cfg.Cleanup.ExpireAfterDays
}

func newPruneCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove reservations whose path no longer exists on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.cleanupEngine().Prune(dryRun)
			if err != nil {
				return err
			}
			a.reportCleanup("cleanup.prune", res, dryRun)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be removed without writing")
	return cmd
}

func newExpireCmd(a *app) *cobra.Command {
	var (
		dryRun bool
		days   int
	)
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Remove reservations unused past the configured age threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			threshold := days
			if !cmd.Flags().Changed("days") {
				threshold = a.expireAfterDays()
			}
			res, err := a.cleanupEngine().Expire(threshold, dryRun)
			if err != nil {
				return err
			}
			a.reportCleanup("cleanup.expire", res, dryRun)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be removed without writing")
	cmd.Flags().IntVar(&days, "days", 0, "override the configured expire_after_days threshold")
	return cmd
}

func newAutocleanCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "autoclean",
		Short: "Run prune followed by expire",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.cleanupEngine().Autoclean(a.expireAfterDays(), dryRun)
			if err != nil {
				return err
			}
			a.reportCleanup("cleanup.prune", res.Prune, dryRun)
			a.reportCleanup("cleanup.expire", res.Expire, dryRun)
			color.New(color.FgCyan).Printf("total removed: %d\n", res.Total)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be removed without writing")
	return cmd
}

func (a *app) reportCleanup(action string, res cleanup.Result, dryRun bool) {
	label := "removed"
	if dryRun {
		label = "would remove"
		action += ".dry_run"
	}
	correlation := audit.NewCorrelationID()
	for _, r := range res.Removed {
		printReservationRemoval(label, r)
		a.audit.Write(audit.Entry{
			CorrelationID: correlation,
			Action:        action,
			Key:           r.Key.String(),
			Port:          r.Port,
		})
	}
	if res.Count == 0 {
		printf("nothing to %s\n", trimDryRun(label))
	}
}

func printReservationRemoval(label string, r reservation.Reservation) {
	color.New(color.FgYellow).Printf("%s %s (port %d)\n", label, r.Key, r.Port)
}

func trimDryRun(label string) string {
	if label == "would remove" {
		return "remove"
	}
	return label
}
