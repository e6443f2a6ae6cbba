package ops

import (
	"fmt"
	"strings"

	"github.com/websoft9/trop/internal/errs"
	"github.com/websoft9/trop/internal/port"
	"github.com/websoft9/trop/internal/reservation"
)

// Planner builds plans from requests against a View. It holds no
// store handle of its own — every method takes the view it needs —
// matching the allocator's "stateless, store passed in" discipline.
type Planner struct {
	Allocator *port.Allocator
	Check     port.CheckConfig
	Now       func() int64
}

func (p *Planner) now() int64 {
	if p.Now != nil {
		return p.Now()
	}
	return 0
}

// ReserveOptions carries the per-field override flags a reserve
// request may set, named as first-class fields rather than scattered
// booleans so a CLI frame (or test) can build one the way
// trop-cli/src/commands did with builder methods (see SPEC_FULL.md's
// supplemented-features list).
type ReserveOptions struct {
	Force              bool
	AllowUnrelatedPath bool
	AllowChangeProject bool
	AllowChangeTask    bool
}

// ReserveRequest is the input to PlanReserve. Port is an explicit
// "--port" request: if unavailable it is a hard error. PreferredPort
// is a hint: if unavailable, the planner falls back to a forward
// scan. Explicit wins when both are set.
type ReserveRequest struct {
	Key           reservation.Key
	Port          *port.Port
	PreferredPort *port.Port

	Project    string
	HasProject bool
	Task       string
	HasTask    bool

	WorkingDir string
	Options    ReserveOptions
}

// PlanReserve implements the reserve algorithm of spec §4.5.3.
func (p *Planner) PlanReserve(view View, req ReserveRequest) (Plan, error) {
	if !req.Options.Force && !req.Options.AllowUnrelatedPath {
		if !pathsRelated(req.Key.Path, req.WorkingDir) {
			return Plan{}, errs.PathRelationshipf(
				"path %q is not an ancestor, descendant, or sibling-under-common-root of %q", req.Key.Path, req.WorkingDir)
		}
	}

	existing, found, err := view.GetByKey(req.Key)
	if err != nil {
		return Plan{}, err
	}

	now := p.now()

	if found {
		return p.planTouch(existing, req, now)
	}
	return p.planCreate(view, req, now)
}

// planTouch handles the existing-reservation branch: enforce sticky
// fields, then either an idempotent UpdateLastUsed (nothing actually
// changed) or an UpdateReservation carrying the allowed project/task
// change alongside the timestamp bump. The spec's plan-length-1
// "idempotent touch" property covers the unchanged case; a permitted
// change must still reach storage, so it rides the Update action
// instead of silently being dropped by UpdateLastUsed, which only
// ever touches the timestamp column.
func (p *Planner) planTouch(existing reservation.Reservation, req ReserveRequest, now int64) (Plan, error) {
	projectChanged := existing.ProjectChanged(req.Project, req.HasProject)
	taskChanged := existing.TaskChanged(req.Task, req.HasTask)

	if projectChanged && !(req.Options.Force || req.Options.AllowChangeProject) {
		return Plan{}, errs.StickyFieldf("project", "reservation at %s already has a project; pass --allow-change-project or --force to change it", req.Key)
	}
	if taskChanged && !(req.Options.Force || req.Options.AllowChangeTask) {
		return Plan{}, errs.StickyFieldf("task", "reservation at %s already has a task; pass --allow-change-task or --force to change it", req.Key)
	}

	if !projectChanged && !taskChanged {
		return Plan{Actions: []Action{{
			Kind:        ActionUpdateLastUsed,
			Key:         req.Key,
			Description: fmt.Sprintf("touch %s (port %d)", req.Key, existing.Port),
		}}}, nil
	}

	updated := existing
	updated.HasProject, updated.Project = req.HasProject, req.Project
	updated.HasTask, updated.Task = req.HasTask, req.Task
	updated.LastUsedAt = now

	return Plan{Actions: []Action{{
		Kind:        ActionUpdate,
		Reservation: updated,
		Description: fmt.Sprintf("update %s (port %d): project/task change", req.Key, existing.Port),
	}}}, nil
}

// planCreate handles the no-existing-reservation branch: run
// allocation, falling back to a pure forward scan when only a
// preferred-port *hint* (not an explicit --port) was unavailable.
func (p *Planner) planCreate(view View, req ReserveRequest, now int64) (Plan, error) {
	preferred, explicit := mergePreferred(req)
	result, err := p.Allocator.AllocateSingle(view, port.AllocationOptions{Preferred: preferred}, p.Check)
	if err != nil {
		return Plan{}, err
	}

	if result.Kind == port.ResultPreferredUnavailable {
		if explicit {
			return Plan{}, errs.PreferredUnavailable(result.UnavailablePort.Value(), port.AvailabilityString(result.UnavailableReason))
		}
		result, err = p.Allocator.AllocateSingle(view, port.AllocationOptions{}, p.Check)
		if err != nil {
			return Plan{}, err
		}
	}

	switch result.Kind {
	case port.ResultAllocated:
		b := reservation.New(req.Key, result.Port.Value(), now)
		if req.HasProject {
			b = b.WithProject(req.Project)
		}
		if req.HasTask {
			b = b.WithTask(req.Task)
		}
		r, err := b.Build()
		if err != nil {
			return Plan{}, err
		}
		return Plan{Actions: []Action{{
			Kind:        ActionCreate,
			Reservation: r,
			Description: fmt.Sprintf("create %s -> port %d", req.Key, r.Port),
		}}}, nil
	case port.ResultExhausted:
		return Plan{}, errs.PortExhaustedErr(p.Allocator.PortRange.Min.Value(), p.Allocator.PortRange.Max.Value(), result.TriedCleanup)
	default:
		return Plan{}, errs.PreferredUnavailable(result.UnavailablePort.Value(), port.AvailabilityString(result.UnavailableReason))
	}
}

func mergePreferred(req ReserveRequest) (*port.Port, bool) {
	if req.Port != nil {
		return req.Port, true
	}
	if req.PreferredPort != nil {
		return req.PreferredPort, false
	}
	return nil, false
}

// PlanRelease builds the plan to delete the reservation at key. A
// missing reservation is a NotFound error rather than a silent no-op:
// release is an explicit user action and deserves feedback.
func (p *Planner) PlanRelease(view View, key reservation.Key) (Plan, error) {
	_, found, err := view.GetByKey(key)
	if err != nil {
		return Plan{}, err
	}
	if !found {
		return Plan{}, errs.NotFoundf("no reservation at %s", key)
	}
	return Plan{Actions: []Action{{
		Kind:        ActionDelete,
		Key:         key,
		Description: fmt.Sprintf("release %s", key),
	}}}, nil
}

// PlanGroup wraps a group request into a single AllocateGroup action.
// The actual allocation is deferred to the executor: it must run
// inside the same transaction that creates the member reservations so
// the whole group becomes visible to other readers atomically (spec
// §9's chosen resolution of the "partial group failure window" open
// question).
func (p *Planner) PlanGroup(req GroupRequest) (Plan, error) {
	if len(req.Services) == 0 {
		return Plan{}, errs.GroupAllocationFailedf("group request has no services")
	}
	tags := make([]string, 0, len(req.Services))
	for _, s := range req.Services {
		tags = append(tags, s.Tag)
	}
	return Plan{Actions: []Action{{
		Kind:        ActionAllocateGroup,
		Group:       &req,
		Description: fmt.Sprintf("allocate group at %s: %s", req.BasePath, strings.Join(tags, ", ")),
	}}}, nil
}

// pathsRelated implements spec §4.5.3's path-relationship guard:
// ancestor, descendant, or sibling-under-common-root collapses to one
// rule — the cleaned paths are equal, or their directory-segment
// sequences share a common prefix of at least one named component
// (not just the root).
func pathsRelated(a, b string) bool {
	if a == b {
		return true
	}
	as, bs := pathSegments(a), pathSegments(b)
	n := len(as)
	if len(bs) < n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		if as[i] != bs[i] {
			return i >= 1
		}
	}
	return n >= 1
}

func pathSegments(p string) []string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		return nil
	}
	return parts
}
