package main

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/websoft9/trop/internal/audit"
	"github.com/websoft9/trop/internal/errs"
	"github.com/websoft9/trop/internal/ops"
	"github.com/websoft9/trop/internal/port"
	"github.com/websoft9/trop/internal/registry"
	"github.com/websoft9/trop/internal/reservation"
)

func boolDefault(b *bool) bool {
	return b != nil && *b
}

func newReserveCmd(a *app) *cobra.Command {
	var (
		tag                string
		explicitPort       int
		preferredPort      int
		project            string
		task               string
		force              bool
		allowUnrelatedPath bool
		allowChangeProject bool
		allowChangeTask    bool
		dryRun             bool
		export             string
		group              bool
		ignoreOccupied     bool
		ignoreExclusions   bool
	)

	cmd := &cobra.Command{
		Use:   "reserve [path]",
		Short: "Reserve a port for a project directory",
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

			if group {
				return a.reserveGroup(cmd, path, project, task, dryRun, ignoreOccupied, ignoreExclusions)
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

			cwd, err := workingDir()
			if err != nil {
				return err
			}

			req := ops.ReserveRequest{
				Key:        key,
				Project:    project,
				HasProject: project != "",
				Task:       task,
				HasTask:    task != "",
				WorkingDir: cwd,
				Options: ops.ReserveOptions{
					Force:              force,
					AllowUnrelatedPath: allowUnrelatedPath || boolDefault(a.cfg.Defaults.AllowUnrelatedPath),
					AllowChangeProject: allowChangeProject || boolDefault(a.cfg.Defaults.AllowChangeProject),
					AllowChangeTask:    allowChangeTask || boolDefault(a.cfg.Defaults.AllowChangeTask),
				},
			}
			if explicitPort != 0 {
				p, err := port.New(explicitPort)
				if err != nil {
					return err
				}
				req.Port = &p
			} else if preferredPort != 0 {
				p, err := port.New(preferredPort)
				if err != nil {
					return err
				}
				req.PreferredPort = &p
			}

			plan, err := a.planner.PlanReserve(a.store, req)
			if err != nil {
				return err
			}

			result, err := a.runPlan(cmd.Context(), plan, dryRun, "reserve")
			if err != nil {
				return err
			}

			printReserveResult(result, dryRun)
			if export != "" && result.Port != nil {
				printf("export %s=%d\n", export, result.Port.Value())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "distinguishes multiple reservations at the same path")
	cmd.Flags().IntVar(&explicitPort, "port", 0, "require this exact port (hard failure if unavailable)")
	cmd.Flags().IntVar(&preferredPort, "preferred-port", 0, "prefer this port, falling back to a scan if unavailable")
	cmd.Flags().StringVar(&project, "project", "", "project label (sticky once set)")
	cmd.Flags().StringVar(&task, "task", "", "task label (sticky once set)")
	cmd.Flags().BoolVar(&force, "force", false, "override path-relationship and sticky-field guards")
	cmd.Flags().BoolVar(&allowUnrelatedPath, "allow-unrelated-path", false, "allow reserving against a path unrelated to the working directory")
	cmd.Flags().BoolVar(&allowChangeProject, "allow-change-project", false, "allow changing an existing reservation's project")
	cmd.Flags().BoolVar(&allowChangeTask, "allow-change-task", false, "allow changing an existing reservation's task")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would happen without writing")
	cmd.Flags().StringVar(&export, "export-env", "", "also print `export NAME=PORT` for shell eval")
	cmd.Flags().BoolVar(&group, "group", false, "allocate the whole reservations group configured for this path instead of a single port")
	cmd.Flags().BoolVar(&ignoreOccupied, "ignore-occupied", false, "group allocation: accept an offset candidate even if it is occupied on the host")
	cmd.Flags().BoolVar(&ignoreExclusions, "ignore-exclusions", false, "group allocation: accept an offset candidate even if it falls in an excluded range")

	return cmd
}

// reserveGroup implements the linked-port path: every service tag
// configured under "reservations" for this base path is allocated
// together, sharing one pattern base, and committed as one atomic
// transaction (spec §4.5.2 / SPEC_FULL.md's group-allocation section).
func (a *app) reserveGroup(cmd *cobra.Command, basePath, project, task string, dryRun, ignoreOccupied, ignoreExclusions bool) error {
	if a.cfg.Reservations == nil || len(a.cfg.Reservations.Services) == 0 {
		return errs.Validationf("reservations", "no reservations group is configured for this project")
	}

	services := make([]port.ServiceRequest, 0, len(a.cfg.Reservations.Services))
	envByTag := make(map[string]string, len(a.cfg.Reservations.Services))
	for tag, def := range a.cfg.Reservations.Services {
		sr := port.ServiceRequest{Tag: tag, Offset: def.Offset}
		if def.Preferred != nil {
			p := port.Port(*def.Preferred)
			sr.Preferred = &p
		}
		services = append(services, sr)
		if def.EnvVar != nil {
			envByTag[tag] = *def.EnvVar
		}
	}

	req := ops.GroupRequest{
		BasePath:         basePath,
		Project:          project,
		HasProject:       project != "",
		Task:             task,
		HasTask:          task != "",
		Services:         services,
		IgnoreOccupied:   ignoreOccupied,
		IgnoreExclusions: ignoreExclusions,
	}

	plan, err := a.planner.PlanGroup(req)
	if err != nil {
		return err
	}

	result, err := a.runPlan(cmd.Context(), plan, dryRun, "reserve.group")
	if err != nil {
		return err
	}

	label := "reserved"
	if dryRun {
		label = "would reserve"
		// Group allocation runs inside the executor, not the planner, so
		// a dry run has no resolved ports to report yet (see ops.PlanGroup).
		for _, d := range result.Descriptions {
			printf("%s\n", d)
		}
	}
	for tag, p := range result.GroupPorts {
		color.New(color.FgGreen).Printf("%s %s -> port %d\n", label, tag, p.Value())
		if env, ok := envByTag[tag]; ok {
			printf("export %s=%d\n", env, p.Value())
		}
	}
	for _, w := range result.Warnings {
		color.New(color.FgYellow).Printf("warning: %s\n", w)
	}
	return nil
}

// runPlan applies plan under a transaction, or echoes it for a dry
// run, and writes one audit entry per action either way.
func (a *app) runPlan(ctx context.Context, plan ops.Plan, dryRun bool, action string) (ops.Result, error) {
	correlation := audit.NewCorrelationID()

	if dryRun {
		res := a.executor.DryRun(plan)
		for _, d := range res.Descriptions {
			a.audit.Write(audit.Entry{
				CorrelationID: correlation,
				Action:        action + ".dry_run",
				Detail:        map[string]any{"description": d},
			})
		}
		return res, nil
	}

	var res ops.Result
	err := a.store.WithTx(ctx, func(tx *registry.Tx) error {
		r, err := a.executor.Apply(tx, plan)
		res = r
		return err
	})
	status := audit.StatusSuccess
	descriptions := res.Descriptions
	if err != nil {
		status = audit.StatusFailed
		// A failed Apply returns an empty Result; log the plan's actions.
		if len(descriptions) == 0 {
			for _, act := range plan.Actions {
				descriptions = append(descriptions, act.Description)
			}
		}
	}
	for _, d := range descriptions {
		detail := map[string]any{"description": d}
		if err != nil {
			detail["error"] = err.Error()
		}
		a.audit.Write(audit.Entry{
			CorrelationID: correlation,
			Action:        action,
			Status:        status,
			Detail:        detail,
		})
	}
	return res, err
}

func printReserveResult(res ops.Result, dryRun bool) {
	label := "reserved"
	if dryRun {
		label = "would reserve"
	}
	if res.Port != nil {
		color.New(color.FgGreen).Printf("%s port %d\n", label, res.Port.Value())
	}
	for _, w := range res.Warnings {
		color.New(color.FgYellow).Printf("warning: %s\n", w)
	}
}

