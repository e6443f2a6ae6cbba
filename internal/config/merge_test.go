package config

import (
	"testing"

	"github.com/websoft9/trop/internal/port"
)

func ptrU16(v uint16) *uint16 { return &v }
func ptrBool(v bool) *bool    { return &v }
func ptrStr(v string) *string { return &v }
func ptrInt(v int) *int       { return &v }

func TestMerge_EmptyIsRightIdentity(t *testing.T) {
	base := Config{Project: ptrStr("alpha"), Ports: PortConfig{Min: ptrU16(5000)}}
	got := Merge(base, Config{})

	if got.Project == nil || *got.Project != "alpha" {
		t.Errorf("Project = %v, want alpha", got.Project)
	}
	if got.Ports.Min == nil || *got.Ports.Min != 5000 {
		t.Errorf("Ports.Min = %v, want 5000", got.Ports.Min)
	}
}

func TestMerge_LaterSourceOverridesScalar(t *testing.T) {
	low := Config{Project: ptrStr("alpha")}
	high := Config{Project: ptrStr("beta")}

	got := Merge(low, high)
	if *got.Project != "beta" {
		t.Errorf("Project = %q, want beta", *got.Project)
	}
}

func TestMerge_ExcludedPortsAccumulate(t *testing.T) {
	low := Config{ExcludedPorts: []port.Exclusion{{Kind: port.Single, Port: 1}}}
	high := Config{ExcludedPorts: []port.Exclusion{{Kind: port.Single, Port: 2}}}

	got := Merge(low, high)
	if len(got.ExcludedPorts) != 2 {
		t.Fatalf("ExcludedPorts = %+v, want 2 entries", got.ExcludedPorts)
	}
}

func TestMerge_OccupancyReplacedWholesale(t *testing.T) {
	low := Config{Occupancy: &OccupancyConfig{Skip: ptrBool(true), SkipTCP: ptrBool(true)}}
	high := Config{Occupancy: &OccupancyConfig{SkipUDP: ptrBool(true)}}

	got := Merge(low, high)
	if got.Occupancy.SkipTCP != nil {
		t.Error("occupancy_check must be replaced wholesale, not merged field-by-field")
	}
	if got.Occupancy.SkipUDP == nil || !*got.Occupancy.SkipUDP {
		t.Error("expected high source's SkipUDP to apply")
	}
}

func TestMerge_PortsPartialMerge(t *testing.T) {
	low := Config{Ports: PortConfig{Min: ptrU16(4000), Max: ptrU16(4100)}}
	high := Config{Ports: PortConfig{Min: ptrU16(5000)}}

	got := Merge(low, high)
	if *got.Ports.Min != 5000 {
		t.Errorf("Min = %d, want 5000 (last source wins)", *got.Ports.Min)
	}
	if *got.Ports.Max != 4100 {
		t.Errorf("Max = %d, want 4100 (present-else-target)", *got.Ports.Max)
	}
}

func TestMerge_ReservationsOnlyTopmostApplies(t *testing.T) {
	low := Config{Reservations: &ReservationGroup{Base: ptrStr("low")}}
	high := Config{Reservations: &ReservationGroup{Base: ptrStr("high")}}

	got := Merge(low, high)
	if *got.Reservations.Base != "high" {
		t.Errorf("Reservations.Base = %q, want %q (topmost wins)", *got.Reservations.Base, "high")
	}
}

func TestMerge_DefaultsMergedPerField(t *testing.T) {
	low := Config{Defaults: &ReserveDefaults{AllowUnrelatedPath: ptrBool(true)}}
	high := Config{Defaults: &ReserveDefaults{AllowChangeProject: ptrBool(true)}}

	got := Merge(low, high)
	if got.Defaults.AllowUnrelatedPath == nil || !*got.Defaults.AllowUnrelatedPath {
		t.Error("low source's AllowUnrelatedPath must survive: high must not replace Defaults wholesale")
	}
	if got.Defaults.AllowChangeProject == nil || !*got.Defaults.AllowChangeProject {
		t.Error("expected high source's AllowChangeProject to apply")
	}
	if got.Defaults.AllowChangeTask != nil {
		t.Error("AllowChangeTask was never set by either source, want nil")
	}
}

func TestMerge_MaximumLockWaitSeconds(t *testing.T) {
	got := Merge(Config{MaximumLockWaitSeconds: ptrInt(5)}, Config{MaximumLockWaitSeconds: ptrInt(10)})
	if *got.MaximumLockWaitSeconds != 10 {
		t.Errorf("MaximumLockWaitSeconds = %d, want 10", *got.MaximumLockWaitSeconds)
	}
}
