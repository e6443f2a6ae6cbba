package ops

import (
	"github.com/websoft9/trop/internal/errs"
	"github.com/websoft9/trop/internal/port"
	"github.com/websoft9/trop/internal/reservation"
)

// Result is what Apply (or DryRun) reports back to the caller: the
// human descriptions of every action taken (or that would be taken),
// any warnings, and — when derivable — the single port a reserve plan
// produced or the tag->port map a group plan produced.
type Result struct {
	Descriptions []string
	Warnings     []string
	DryRun       bool

	Port       *port.Port
	GroupPorts map[string]port.Port
}

// Executor applies a Plan's actions against a live Txn, or echoes it
// for a dry run without touching the store.
type Executor struct {
	Allocator *port.Allocator
	Check     port.CheckConfig
	Now       func() int64
}

func (e *Executor) now() int64 {
	if e.Now != nil {
		return e.Now()
	}
	return 0
}

// DryRun builds a Result from the plan alone: action descriptions,
// warnings, and the would-be port of Create/Update actions, without
// calling into the store at all. AllocateGroup actions resolve their
// ports only when applied, so GroupPorts is left nil.
func (e *Executor) DryRun(plan Plan) Result {
	res := Result{Warnings: plan.Warnings, DryRun: true}
	for _, a := range plan.Actions {
		res.Descriptions = append(res.Descriptions, a.Description)
		switch a.Kind {
		case ActionCreate, ActionUpdate:
			p := port.Port(a.Reservation.Port)
			res.Port = &p
		}
	}
	return res
}

// Apply executes every action in plan against tx, in order. The
// first failing action aborts the whole plan; the caller is
// responsible for rolling back the transaction tx is scoped to (see
// registry.Store.WithTx) — Apply itself never partially commits.
func (e *Executor) Apply(tx Txn, plan Plan) (Result, error) {
	res := Result{Warnings: plan.Warnings}

	for _, a := range plan.Actions {
		res.Descriptions = append(res.Descriptions, a.Description)

		switch a.Kind {
		case ActionCreate:
			created, err := tx.TryCreateAtomic(a.Reservation)
			if err != nil {
				return Result{}, err
			}
			if !created {
				return Result{}, errs.PreferredUnavailable(a.Reservation.Port, port.AvailabilityString(port.Occupied))
			}
			p := port.Port(a.Reservation.Port)
			res.Port = &p

		case ActionUpdate:
			if err := tx.UpsertByKey(a.Reservation); err != nil {
				return Result{}, err
			}
			p := port.Port(a.Reservation.Port)
			res.Port = &p

		case ActionUpdateLastUsed:
			if _, err := tx.UpdateLastUsed(a.Key, e.now()); err != nil {
				return Result{}, err
			}
			if existing, found, err := tx.GetByKey(a.Key); err == nil && found {
				p := port.Port(existing.Port)
				res.Port = &p
			}

		case ActionDelete:
			if _, err := tx.Delete(a.Key); err != nil {
				return Result{}, err
			}

		case ActionAllocateGroup:
			ports, err := e.applyGroup(tx, a.Group)
			if err != nil {
				return Result{}, err
			}
			res.GroupPorts = ports
		}
	}

	return res, nil
}

// applyGroup runs the group allocation algorithm against tx and
// atomically creates one reservation per resolved service port. Any
// failure — pattern not found, or a concurrent winner stealing a
// resolved port before this transaction commits — aborts the whole
// group; the caller rolls the transaction back, so no member
// reservation is ever visible without the rest (spec §4.5.2 step 5).
func (e *Executor) applyGroup(tx Txn, req *GroupRequest) (map[string]port.Port, error) {
	result, err := e.Allocator.AllocateGroup(tx, req.Services, req.IgnoreOccupied, req.IgnoreExclusions)
	if err != nil {
		return nil, err
	}

	now := e.now()
	out := make(map[string]port.Port, len(result.Tags))

	for _, tag := range result.Tags {
		p := result.Ports[tag]
		key, err := reservation.WithTag(req.BasePath, tag, reservation.ExplicitPath)
		if err != nil {
			return nil, err
		}
		b := reservation.New(key, p.Value(), now)
		if req.HasProject {
			b = b.WithProject(req.Project)
		}
		if req.HasTask {
			b = b.WithTask(req.Task)
		}
		r, err := b.Build()
		if err != nil {
			return nil, err
		}
		created, err := tx.TryCreateAtomic(r)
		if err != nil {
			return nil, err
		}
		if !created {
			return nil, errs.PreferredUnavailable(p.Value(), port.AvailabilityString(port.Occupied))
		}
		out[tag] = p
	}
	return out, nil
}
