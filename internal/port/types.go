// Package port holds the value types and algorithms the reservation
// engine uses to reason about TCP/UDP port numbers: the Port and
// PortRange primitives, the exclusion set, the occupancy capability,
// and the stateless allocator built on top of them.
package port

import (
	"fmt"
	"sort"

	"github.com/websoft9/trop/internal/errs"
)

// Port is a validated port number in [1, 65535]. Zero is never valid.
type Port uint16

// New validates v and returns it as a Port, or an error if v is
// outside [1, 65535].
func New(v int) (Port, error) {
	if v < 1 || v > 65535 {
		return 0, errs.Validationf("port", "invalid port number: %d", v)
	}
	return Port(v), nil
}

func (p Port) Value() uint16 { return uint16(p) }

// Range is an inclusive [Min, Max] pair of valid ports with Min <= Max.
type Range struct {
	Min Port
	Max Port
}

// NewRange validates and builds a Range.
func NewRange(min, max int) (Range, error) {
	minPort, err := New(min)
	if err != nil {
		return Range{}, err
	}
	maxPort, err := New(max)
	if err != nil {
		return Range{}, err
	}
	if maxPort < minPort {
		return Range{}, errs.Validationf("ports", "max must be >= min")
	}
	return Range{Min: minPort, Max: maxPort}, nil
}

// Contains reports whether p lies within the range, inclusive.
func (r Range) Contains(p Port) bool {
	return p >= r.Min && p <= r.Max
}

// Ports returns the ascending slice of every port in the range. Callers
// doing a scan should prefer iterating with Contains/arithmetic instead
// of materializing this for large ranges; it exists for small ranges
// and tests.
func (r Range) Ports() []Port {
	out := make([]Port, 0, int(r.Max)-int(r.Min)+1)
	for p := r.Min; ; p++ {
		out = append(out, p)
		if p == r.Max {
			break
		}
	}
	return out
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.Min, r.Max)
}

// ExclusionKind discriminates the two shapes a PortExclusion can take.
type ExclusionKind int

const (
	Single ExclusionKind = iota
	ExclRange
)

// Exclusion is a single port, or an inclusive range of ports, that must
// never be allocated. It round-trips through YAML as a bare integer
// ("5001"), a string ("5000..5010"), or a mapping ({start,end}); see
// (*Exclusion).UnmarshalYAML in exclusion_yaml.go.
type Exclusion struct {
	Kind  ExclusionKind
	Port  uint16 // valid when Kind == Single
	Start uint16 // valid when Kind == ExclRange
	End   uint16 // valid when Kind == ExclRange
}

// Validate checks port bounds and, for ranges, that Start <= End.
func (e Exclusion) Validate() error {
	switch e.Kind {
	case Single:
		if _, err := New(int(e.Port)); err != nil {
			return errs.Validationf("excluded_ports", "invalid port: %d", e.Port)
		}
	case ExclRange:
		if _, err := New(int(e.Start)); err != nil {
			return errs.Validationf("excluded_ports", "invalid start port: %d", e.Start)
		}
		if _, err := New(int(e.End)); err != nil {
			return errs.Validationf("excluded_ports", "invalid end port: %d", e.End)
		}
		if e.End < e.Start {
			return errs.Validationf("excluded_ports", "invalid range: %d..%d (end < start)", e.Start, e.End)
		}
	}
	return nil
}

// members appends every port this exclusion covers to dst, ascending.
func (e Exclusion) members(dst []uint16) []uint16 {
	switch e.Kind {
	case Single:
		return append(dst, e.Port)
	case ExclRange:
		for p := e.Start; ; p++ {
			dst = append(dst, p)
			if p == e.End {
				break
			}
		}
	}
	return dst
}

// sortUnique sorts ports ascending and removes duplicates in place.
func sortUnique(ports []uint16) []uint16 {
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	out := ports[:0]
	var prev uint16
	havePrev := false
	for _, p := range ports {
		if havePrev && p == prev {
			continue
		}
		out = append(out, p)
		prev = p
		havePrev = true
	}
	return out
}
