// Package config holds the typed configuration tree the registry
// engine is driven by: per-field-optional partials as loaded from
// each layered source, the merger that combines them, the environment
// variable overlay, and the validator that turns a merged tree into a
// usable Config or a structured error.
package config

import "github.com/websoft9/trop/internal/port"

// PortConfig describes the allocation range. Min is required after
// merge; exactly one of Max or MaxOffset must end up set.
type PortConfig struct {
	Min       *uint16 `yaml:"min"`
	Max       *uint16 `yaml:"max"`
	MaxOffset *uint16 `yaml:"max_offset"`
}

// CleanupConfig carries the expiry threshold.
type CleanupConfig struct {
	ExpireAfterDays *int `yaml:"expire_after_days"`
}

// OccupancyConfig mirrors port.CheckConfig's booleans at the
// configuration-file layer; the field names here (skip_ip4/skip_ip6)
// are the historical schema spelling and are translated to
// port.CheckConfig's SkipIPv4/SkipIPv6 at the boundary.
type OccupancyConfig struct {
	Skip               *bool `yaml:"skip"`
	SkipIP4            *bool `yaml:"skip_ip4"`
	SkipIP6            *bool `yaml:"skip_ip6"`
	SkipTCP            *bool `yaml:"skip_tcp"`
	SkipUDP            *bool `yaml:"skip_udp"`
	CheckAllInterfaces *bool `yaml:"check_all_interfaces"`
}

// ToCheckConfig builds a port.CheckConfig from the resolved booleans,
// treating unset fields as false.
func (o OccupancyConfig) ToCheckConfig() port.CheckConfig {
	return port.CheckConfig{
		Skip:               boolVal(o.Skip),
		SkipIPv4:           boolVal(o.SkipIP4),
		SkipIPv6:           boolVal(o.SkipIP6),
		SkipTCP:            boolVal(o.SkipTCP),
		SkipUDP:            boolVal(o.SkipUDP),
		CheckAllInterfaces: boolVal(o.CheckAllInterfaces),
	}
}

func boolVal(b *bool) bool {
	return b != nil && *b
}

// ServiceDefinition is one entry of a ReservationGroup: a tag maps to
// an optional fixed offset, an optional preferred absolute port (which
// dominates the offset when both are set), and an optional name of an
// environment variable that should receive the resolved port when the
// CLI frame exports the reservation's result.
type ServiceDefinition struct {
	Offset    *uint16 `yaml:"offset"`
	Preferred *uint16 `yaml:"preferred"`
	EnvVar    *string `yaml:"env"`
}

// ReservationGroup is the project-local group definition: a base path
// override plus the tag -> ServiceDefinition map.
type ReservationGroup struct {
	Base     *string                      `yaml:"base"`
	Services map[string]ServiceDefinition `yaml:"services"`
}

// ReserveDefaults carries the per-field override booleans that the
// environment overlay and, optionally, a config file may set as
// standing defaults for reserve requests.
type ReserveDefaults struct {
	AllowUnrelatedPath *bool `yaml:"allow_unrelated_path"`
	AllowChangeProject *bool `yaml:"allow_change_project"`
	AllowChangeTask    *bool `yaml:"allow_change_task"`
	AllowChange        *bool `yaml:"allow_change"`
}

// Config is one layer's partial configuration: every field is
// optional, including substructs, so that Merge can tell "absent" from
// "explicitly zero".
type Config struct {
	Project *string `yaml:"project"`

	DisableAutoinit   *bool `yaml:"disable_autoinit"`
	DisableAutoprune  *bool `yaml:"disable_autoprune"`
	DisableAutoexpire *bool `yaml:"disable_autoexpire"`

	Ports         PortConfig        `yaml:"ports"`
	ExcludedPorts []port.Exclusion  `yaml:"excluded_ports"`
	Occupancy     *OccupancyConfig  `yaml:"occupancy_check"`
	Cleanup       *CleanupConfig    `yaml:"cleanup"`
	Reservations  *ReservationGroup `yaml:"reservations"`
	Defaults      *ReserveDefaults  `yaml:"defaults"`

	MaximumLockWaitSeconds *int `yaml:"maximum_lock_wait_seconds"`
}

// Resolved is the fully merged and validated configuration, with every
// field that validation guarantees present given concrete (non-pointer,
// where applicable) types for the engine to consume directly.
type Resolved struct {
	Project string

	DisableAutoinit   bool
	DisableAutoprune  bool
	DisableAutoexpire bool

	PortRange port.Range
	Exclusions *port.Manager

	Occupancy OccupancyConfig
	Cleanup   CleanupConfig

	Reservations *ReservationGroup
	Defaults     ReserveDefaults

	MaximumLockWaitSeconds int
}
