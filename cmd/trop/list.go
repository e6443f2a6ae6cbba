package main

import (
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/websoft9/trop/internal/reservation"
)

func newListCmd(a *app) *cobra.Command {
	var (
		prefix  string
		project string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reservations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				all []reservation.Reservation
				err error
			)
			if prefix != "" {
				abs, _, rerr := resolvePath(prefix)
				if rerr != nil {
					return rerr
				}
				all, err = a.store.ListByPathPrefix(abs)
			} else {
				all, err = a.store.ListAll()
			}
			if err != nil {
				return err
			}

			sort.Slice(all, func(i, j int) bool { return all[i].Port < all[j].Port })

			for _, r := range all {
				if project != "" && (!r.HasProject || r.Project != project) {
					continue
				}
				printReservationRow(r)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "path", "", "restrict to reservations at or under this path")
	cmd.Flags().StringVar(&project, "project", "", "restrict to reservations tagged with this project")

	return cmd
}

func printReservationRow(r reservation.Reservation) {
	age := humanize.Time(time.Unix(r.LastUsedAt, 0))
	color.New(color.FgCyan).Printf("%5d  ", r.Port)
	printf("%-60s", r.Key.String())
	if r.HasProject {
		printf("  project=%s", r.Project)
	}
	if r.HasTask {
		printf("  task=%s", r.Task)
	}
	printf("  last used %s\n", age)
}
