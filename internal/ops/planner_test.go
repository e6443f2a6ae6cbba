package ops

import (
	"testing"

	"github.com/websoft9/trop/internal/errs"
	"github.com/websoft9/trop/internal/port"
	"github.com/websoft9/trop/internal/reservation"
)

func newTestPlanner(t *testing.T, min, max int) (*Planner, *fakeStore) {
	t.Helper()
	r, err := port.NewRange(min, max)
	if err != nil {
		t.Fatalf("NewRange: %v", err)
	}
	alloc := port.NewAllocator(port.NewMockChecker(), port.NewManager(nil), r)
	return &Planner{Allocator: alloc, Now: func() int64 { return 1000 }}, newFakeStore()
}

// Scenario 1: fresh reserve allocates the smallest free port as a
// single CreateReservation action.
func TestPlanReserve_FreshReserveAllocatesSmallestPort(t *testing.T) {
	p, store := newTestPlanner(t, 5000, 5010)
	key, _ := reservation.NoTag("/home/dev/prj", reservation.ExplicitPath)

	plan, err := p.PlanReserve(store, ReserveRequest{Key: key, WorkingDir: "/home/dev/prj"})
	if err != nil {
		t.Fatalf("PlanReserve: %v", err)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Kind != ActionCreate {
		t.Fatalf("plan = %+v, want single ActionCreate", plan.Actions)
	}
	if plan.Actions[0].Reservation.Port != 5000 {
		t.Errorf("port = %d, want 5000", plan.Actions[0].Reservation.Port)
	}
}

// Scenario 2: re-reserving an existing key with identical parameters
// is an idempotent UpdateLastUsed, not a new row.
func TestPlanReserve_IdempotentTouch(t *testing.T) {
	p, store := newTestPlanner(t, 5000, 5010)
	key, _ := reservation.NoTag("/home/dev/prj", reservation.ExplicitPath)
	existing, _ := reservation.New(key, 5000, 900).Build()
	put(store, existing)

	plan, err := p.PlanReserve(store, ReserveRequest{Key: key, WorkingDir: "/home/dev/prj"})
	if err != nil {
		t.Fatalf("PlanReserve: %v", err)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Kind != ActionUpdateLastUsed {
		t.Fatalf("plan = %+v, want single ActionUpdateLastUsed", plan.Actions)
	}

	exec := &Executor{Now: func() int64 { return 2000 }}
	res, err := exec.Apply(store, plan)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Port == nil || res.Port.Value() != 5000 {
		t.Errorf("result port = %v, want 5000", res.Port)
	}
	updated, found, _ := store.GetByKey(key)
	if !found || updated.LastUsedAt != 2000 {
		t.Errorf("last_used_at = %d, want 2000 after touch", updated.LastUsedAt)
	}
}

// Scenario 3: a preferred-port hint that is unavailable falls back to
// a forward scan rather than erroring.
func TestPlanReserve_PreferredHintFallsBackToScan(t *testing.T) {
	p, store := newTestPlanner(t, 5000, 5010)
	occupantKey, _ := reservation.NoTag("/other", reservation.ExplicitPath)
	occupant, _ := reservation.New(occupantKey, 5005, 900).Build()
	put(store, occupant)

	key, _ := reservation.NoTag("/home/dev/prj", reservation.ExplicitPath)
	pref := port.Port(5005)
	plan, err := p.PlanReserve(store, ReserveRequest{Key: key, PreferredPort: &pref, WorkingDir: "/home/dev/prj"})
	if err != nil {
		t.Fatalf("PlanReserve: %v", err)
	}
	if plan.Actions[0].Reservation.Port != 5000 {
		t.Errorf("port = %d, want 5000 (fallback scan)", plan.Actions[0].Reservation.Port)
	}
}

// An explicit --port that is unavailable must surface a typed error
// instead of silently falling back.
func TestPlanReserve_ExplicitPortUnavailableErrors(t *testing.T) {
	p, store := newTestPlanner(t, 5000, 5010)
	occupantKey, _ := reservation.NoTag("/other", reservation.ExplicitPath)
	occupant, _ := reservation.New(occupantKey, 5005, 900).Build()
	put(store, occupant)

	key, _ := reservation.NoTag("/home/dev/prj", reservation.ExplicitPath)
	explicit := port.Port(5005)
	_, err := p.PlanReserve(store, ReserveRequest{Key: key, Port: &explicit, WorkingDir: "/home/dev/prj"})
	if kind, ok := errs.KindOf(err); !ok || kind != errs.PreferredPortUnavailable {
		t.Fatalf("err = %v, want PreferredPortUnavailable", err)
	}
}

func TestPlanReserve_Exhausted(t *testing.T) {
	p, store := newTestPlanner(t, 5000, 5000)
	occupantKey, _ := reservation.NoTag("/other", reservation.ExplicitPath)
	occupant, _ := reservation.New(occupantKey, 5000, 900).Build()
	put(store, occupant)

	key, _ := reservation.NoTag("/home/dev/prj", reservation.ExplicitPath)
	_, err := p.PlanReserve(store, ReserveRequest{Key: key, WorkingDir: "/home/dev/prj"})
	if kind, ok := errs.KindOf(err); !ok || kind != errs.PortExhausted {
		t.Fatalf("err = %v, want PortExhausted", err)
	}
}

// Sticky-field protection: changing project without force/allow-flag
// must error; with the allow flag it must ride an Update action.
func TestPlanReserve_StickyProjectChangeRejected(t *testing.T) {
	p, store := newTestPlanner(t, 5000, 5010)
	key, _ := reservation.NoTag("/home/dev/prj", reservation.ExplicitPath)
	existing, _ := reservation.New(key, 5000, 900).WithProject("alpha").Build()
	put(store, existing)

	_, err := p.PlanReserve(store, ReserveRequest{
		Key: key, Project: "beta", HasProject: true, WorkingDir: "/home/dev/prj",
	})
	if kind, ok := errs.KindOf(err); !ok || kind != errs.StickyFieldChange {
		t.Fatalf("err = %v, want StickyFieldChange", err)
	}

	plan, err := p.PlanReserve(store, ReserveRequest{
		Key: key, Project: "beta", HasProject: true, WorkingDir: "/home/dev/prj",
		Options: ReserveOptions{AllowChangeProject: true},
	})
	if err != nil {
		t.Fatalf("PlanReserve with allow flag: %v", err)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Kind != ActionUpdate {
		t.Fatalf("plan = %+v, want single ActionUpdate", plan.Actions)
	}
	if plan.Actions[0].Reservation.Project != "beta" {
		t.Errorf("project = %q, want beta", plan.Actions[0].Reservation.Project)
	}
}

func TestPlanReserve_SameProjectIsNotAChange(t *testing.T) {
	p, store := newTestPlanner(t, 5000, 5010)
	key, _ := reservation.NoTag("/home/dev/prj", reservation.ExplicitPath)
	existing, _ := reservation.New(key, 5000, 900).WithProject("alpha").Build()
	put(store, existing)

	plan, err := p.PlanReserve(store, ReserveRequest{
		Key: key, Project: "alpha", HasProject: true, WorkingDir: "/home/dev/prj",
	})
	if err != nil {
		t.Fatalf("PlanReserve: %v", err)
	}
	if plan.Actions[0].Kind != ActionUpdateLastUsed {
		t.Errorf("Some(a)->Some(a) must stay an idempotent touch, got %v", plan.Actions[0].Kind)
	}
}

// Path-relationship guard: an unrelated path errors unless force or
// allow_unrelated_path is set.
func TestPlanReserve_UnrelatedPathRejected(t *testing.T) {
	p, store := newTestPlanner(t, 5000, 5010)
	key, _ := reservation.NoTag("/var/lib/other-project", reservation.ExplicitPath)

	_, err := p.PlanReserve(store, ReserveRequest{Key: key, WorkingDir: "/home/dev/prj"})
	if kind, ok := errs.KindOf(err); !ok || kind != errs.PathRelationshipViolation {
		t.Fatalf("err = %v, want PathRelationshipViolation", err)
	}

	plan, err := p.PlanReserve(store, ReserveRequest{
		Key: key, WorkingDir: "/home/dev/prj", Options: ReserveOptions{AllowUnrelatedPath: true},
	})
	if err != nil {
		t.Fatalf("PlanReserve with allow_unrelated_path: %v", err)
	}
	if len(plan.Actions) != 1 {
		t.Fatalf("plan = %+v", plan.Actions)
	}
}

func TestPlanReserve_DescendantAndSiblingPathsAreRelated(t *testing.T) {
	p, store := newTestPlanner(t, 5000, 5010)

	descendant, _ := reservation.NoTag("/home/dev/prj/sub", reservation.ExplicitPath)
	if _, err := p.PlanReserve(store, ReserveRequest{Key: descendant, WorkingDir: "/home/dev/prj"}); err != nil {
		t.Errorf("descendant path should be related: %v", err)
	}

	sibling, _ := reservation.NoTag("/home/dev/other", reservation.ExplicitPath)
	if _, err := p.PlanReserve(store, ReserveRequest{Key: sibling, WorkingDir: "/home/dev/prj"}); err != nil {
		t.Errorf("sibling-under-common-root path should be related: %v", err)
	}
}

// PlanRelease: missing reservation is NotFound, not a silent no-op.
func TestPlanRelease_MissingIsNotFound(t *testing.T) {
	p, store := newTestPlanner(t, 5000, 5010)
	key, _ := reservation.NoTag("/home/dev/prj", reservation.ExplicitPath)

	_, err := p.PlanRelease(store, key)
	if kind, ok := errs.KindOf(err); !ok || kind != errs.NotFound {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestPlanRelease_Existing(t *testing.T) {
	p, store := newTestPlanner(t, 5000, 5010)
	key, _ := reservation.NoTag("/home/dev/prj", reservation.ExplicitPath)
	existing, _ := reservation.New(key, 5000, 900).Build()
	put(store, existing)

	plan, err := p.PlanRelease(store, key)
	if err != nil {
		t.Fatalf("PlanRelease: %v", err)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Kind != ActionDelete {
		t.Fatalf("plan = %+v, want single ActionDelete", plan.Actions)
	}

	exec := &Executor{}
	if _, err := exec.Apply(store, plan); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, found, _ := store.GetByKey(key); found {
		t.Error("reservation should be gone after release")
	}
}

// Scenario 4: group pattern skips already-reserved offsets.
func TestPlanGroup_OffsetPatternSkipsReservedBase(t *testing.T) {
	r, _ := port.NewRange(5000, 5100)
	alloc := port.NewAllocator(port.NewMockChecker(), port.NewManager(nil), r)
	exec := &Executor{Allocator: alloc, Now: func() int64 { return 1000 }}
	store := newFakeStore()

	taken, _ := reservation.NoTag("/other", reservation.ExplicitPath)
	tr, _ := reservation.New(taken, 5001, 900).Build()
	put(store, tr)

	pl := &Planner{Allocator: alloc}
	req := GroupRequest{
		BasePath: "/home/dev/prj",
		Services: []port.ServiceRequest{
			{Tag: "web", Offset: u16ptr(0)},
			{Tag: "api", Offset: u16ptr(1)},
		},
	}
	plan, err := pl.PlanGroup(req)
	if err != nil {
		t.Fatalf("PlanGroup: %v", err)
	}

	res, err := exec.Apply(store, plan)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.GroupPorts["web"] != 5002 || res.GroupPorts["api"] != 5003 {
		t.Fatalf("GroupPorts = %+v, want web=5002 api=5003", res.GroupPorts)
	}
}

func u16ptr(v uint16) *uint16 { return &v }
