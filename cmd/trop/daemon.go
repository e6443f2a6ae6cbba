package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/websoft9/trop/internal/audit"
)

// newDaemonCmd runs autoclean on a cron schedule until interrupted,
// for hosts that would rather not rely on an external scheduler to
// invoke "trop cleanup autoclean" themselves.
func newDaemonCmd(a *app) *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run autoclean on a schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cron.New()
			_, err := c.AddFunc(schedule, func() {
				a.runAutocleanTick()
			})
			if err != nil {
				return err
			}

			c.Start()
			color.New(color.FgCyan).Printf("trop daemon running (schedule %q); Ctrl-C to stop\n", schedule)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			ctx := c.Stop()
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "@midnight", "cron expression for the autoclean tick")

	return cmd
}

func (a *app) runAutocleanTick() {
	engine := a.cleanupEngine()
	correlation := audit.NewCorrelationID()
	total := 0
	failed := false

	if !a.cfg.DisableAutoprune {
		res, err := engine.Prune(false)
		if err != nil {
			failed = true
		}
		total += res.Count
	}
	if !a.cfg.DisableAutoexpire {
		res, err := engine.Expire(a.expireAfterDays(), false)
		if err != nil {
			failed = true
		}
		total += res.Count
	}

	status := audit.StatusSuccess
	if failed {
		status = audit.StatusFailed
	}
	a.audit.Write(audit.Entry{
		CorrelationID: correlation,
		Action:        "daemon.autoclean",
		Status:        status,
		Detail:        map[string]any{"removed": total},
	})
}
