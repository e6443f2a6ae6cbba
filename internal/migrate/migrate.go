// Package migrate implements the migration engine of spec §4.8:
// moving one reservation, or a whole subtree of them, from one path
// prefix to another while preserving port/project/task/history.
package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/websoft9/trop/internal/errs"
	"github.com/websoft9/trop/internal/ops"
	"github.com/websoft9/trop/internal/reservation"
)

// Store is the read surface migration needs to select sources and
// detect destination conflicts; the actual plan execution goes
// through ops.Txn, same as any other plan.
type Store interface {
	ops.View
	ListByPathPrefix(prefix string) ([]reservation.Reservation, error)
}

// Request describes one migration invocation.
type Request struct {
	FromPath   string
	FromTag    string
	HasFromTag bool

	ToPath string

	Recursive bool
	Force     bool
	DryRun    bool
}

// BuildPlan selects source reservations, computes each destination
// key, and assembles the delete/create action sequence described by
// spec §4.8 steps 2-6. It performs reads only; nothing is written
// until the caller passes the returned plan to an Executor.
func BuildPlan(view Store, req Request) (ops.Plan, error) {
	var sources []reservation.Reservation

	if req.Recursive {
		list, err := view.ListByPathPrefix(req.FromPath)
		if err != nil {
			return ops.Plan{}, err
		}
		sources = list
		if len(sources) == 0 {
			return ops.Plan{}, nil
		}
	} else {
		key, err := fromKey(req)
		if err != nil {
			return ops.Plan{}, err
		}
		r, found, err := view.GetByKey(key)
		if err != nil {
			return ops.Plan{}, err
		}
		if !found {
			return ops.Plan{}, errs.NotFoundf("no reservation at %s", key)
		}
		sources = []reservation.Reservation{r}
	}

	type move struct {
		src    reservation.Reservation
		newKey reservation.Key
	}
	moves := make([]move, 0, len(sources))
	var conflicts []reservation.Key

	for _, src := range sources {
		suffix := strings.TrimPrefix(src.Key.Path, req.FromPath)
		newPath := req.ToPath + suffix

		var newKey reservation.Key
		var err error
		if src.Key.HasTag {
			newKey, err = reservation.WithTag(newPath, src.Key.Tag, reservation.ExplicitPath)
		} else {
			newKey, err = reservation.NoTag(newPath, reservation.ExplicitPath)
		}
		if err != nil {
			return ops.Plan{}, errs.InvalidPathf(newPath, "building migration destination: %v", err)
		}

		_, found, err := view.GetByKey(newKey)
		if err != nil {
			return ops.Plan{}, err
		}
		if found {
			conflicts = append(conflicts, newKey)
		}
		moves = append(moves, move{src: src, newKey: newKey})
	}

	if len(conflicts) > 0 && !req.Force {
		return ops.Plan{}, errs.ReservationConflictf("%d destination reservation(s) already exist; pass --force to overwrite", len(conflicts))
	}

	var actions []ops.Action
	for _, c := range conflicts {
		actions = append(actions, ops.Action{
			Kind:        ops.ActionDelete,
			Key:         c,
			Description: fmt.Sprintf("migrate: delete conflicting destination %s", c),
		})
	}
	for _, m := range moves {
		actions = append(actions, ops.Action{
			Kind:        ops.ActionDelete,
			Key:         m.src.Key,
			Description: fmt.Sprintf("migrate: delete source %s", m.src.Key),
		})
		moved := m.src
		moved.Key = m.newKey
		actions = append(actions, ops.Action{
			Kind:        ops.ActionCreate,
			Reservation: moved,
			Description: fmt.Sprintf("migrate: create %s -> port %d", m.newKey, moved.Port),
		})
	}

	return ops.Plan{Actions: actions}, nil
}

func fromKey(req Request) (reservation.Key, error) {
	if req.HasFromTag {
		return reservation.WithTag(req.FromPath, req.FromTag, reservation.ExplicitPath)
	}
	return reservation.NoTag(req.FromPath, reservation.ExplicitPath)
}

// TxRunner opens a transaction scoped to a single ops.Txn call. It is
// a plain function type, not an interface, so the CLI frame can adapt
// registry.Store.WithTx (which is typed over the concrete *registry.Tx)
// with a one-line closure instead of this package importing registry.
type TxRunner func(ctx context.Context, fn func(tx ops.Txn) error) error

// Execute builds the plan and, unless req.DryRun, applies it under a
// single transaction (spec §4.8 step 7: all-or-nothing).
func Execute(ctx context.Context, view Store, run TxRunner, executor *ops.Executor, req Request) (ops.Result, error) {
	plan, err := BuildPlan(view, req)
	if err != nil {
		return ops.Result{}, err
	}
	if len(plan.Actions) == 0 {
		return ops.Result{DryRun: req.DryRun}, nil
	}
	if req.DryRun {
		return executor.DryRun(plan), nil
	}

	var res ops.Result
	err = run(ctx, func(tx ops.Txn) error {
		r, err := executor.Apply(tx, plan)
		res = r
		return err
	})
	return res, err
}
