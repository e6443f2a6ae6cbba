package main

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/websoft9/trop/internal/audit"
	"github.com/websoft9/trop/internal/migrate"
	"github.com/websoft9/trop/internal/ops"
	"github.com/websoft9/trop/internal/registry"
)

func newMigrateCmd(a *app) *cobra.Command {
	var (
		tag       string
		recursive bool
		force     bool
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "migrate <from> <to>",
		Short: "Move a reservation, or a whole subtree, to a new path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromArg, toArg := args[0], args[1]
			from, _, err := resolvePath(fromArg)
			if err != nil {
				return err
			}
			to, _, err := resolvePath(toArg)
			if err != nil {
				return err
			}

			req := migrate.Request{
				FromPath:   from,
				FromTag:    tag,
				HasFromTag: tag != "",
				ToPath:     to,
				Recursive:  recursive,
				Force:      force,
				DryRun:     dryRun,
			}

			runner := migrate.TxRunner(func(ctx context.Context, fn func(tx ops.Txn) error) error {
				return a.store.WithTx(ctx, func(tx *registry.Tx) error { return fn(tx) })
			})

			result, err := migrate.Execute(cmd.Context(), a.store, runner, a.executor, req)
			if err != nil {
				return err
			}

			correlation := audit.NewCorrelationID()
			action := "migrate"
			if dryRun {
				action += ".dry_run"
			}
			for _, d := range result.Descriptions {
				printf("%s\n", d)
				a.audit.Write(audit.Entry{CorrelationID: correlation, Action: action, Detail: map[string]any{"description": d}})
			}
			if len(result.Descriptions) == 0 {
				color.New(color.FgYellow).Println("nothing to migrate")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "distinguishes multiple reservations at the same path (non-recursive only)")
	cmd.Flags().BoolVar(&recursive, "recursive", false, "migrate every reservation under the source path prefix")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite destination reservations that already exist")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would move without writing")

	return cmd
}
