package port

// ReservedChecker is the read view of the registry store the allocator
// needs: whether a candidate port is already reserved by someone.
// Defined here (rather than importing the registry package) to keep
// the allocator stateless and dependency-free, per the "allocator
// never holds a database handle" rule.
type ReservedChecker interface {
	IsPortReserved(p Port) (bool, error)
}

// Availability classifies a candidate port during a scan.
type Availability int

const (
	Available Availability = iota
	Reserved
	Excluded
	Occupied
)

// AvailabilityString renders an Availability the way errors and the
// CLI report it: "reserved", "excluded", "occupied", or "available".
func AvailabilityString(a Availability) string {
	switch a {
	case Reserved:
		return "reserved"
	case Excluded:
		return "excluded"
	case Occupied:
		return "occupied"
	default:
		return "available"
	}
}

// AllocationOptions parameterizes a single-port allocation attempt.
type AllocationOptions struct {
	Preferred        *Port
	IgnoreOccupied   bool
	IgnoreExclusions bool
}

// ResultKind discriminates the outcome of a single-port allocation.
type ResultKind int

const (
	ResultAllocated ResultKind = iota
	ResultPreferredUnavailable
	ResultExhausted
)

// Result is the outcome of a single-port allocation attempt. Only the
// fields relevant to Kind are meaningful.
type Result struct {
	Kind ResultKind

	Port Port // ResultAllocated

	UnavailablePort   Port         // ResultPreferredUnavailable
	UnavailableReason Availability // ResultPreferredUnavailable

	TriedCleanup bool // ResultExhausted
}

// Allocator is stateless: every method takes the store view it needs
// as an argument rather than holding a handle itself.
type Allocator struct {
	Checker    Checker
	Exclusions *Manager
	PortRange  Range
}

// NewAllocator builds an Allocator from its three dependencies.
func NewAllocator(checker Checker, exclusions *Manager, r Range) *Allocator {
	return &Allocator{Checker: checker, Exclusions: exclusions, PortRange: r}
}

// classify determines why a candidate port is or isn't available,
// applying the ignore flags: Reserved always blocks (no flag waives an
// I2 collision); Excluded and Occupied are checked, in that priority
// order, only when their respective ignore flag is unset. An error
// from the occupancy probe is fail-closed: treated as Occupied.
func (a *Allocator) classify(p Port, store ReservedChecker, cfg CheckConfig, opts AllocationOptions) (Availability, error) {
	reserved, err := store.IsPortReserved(p)
	if err != nil {
		return Occupied, err
	}
	if reserved {
		return Reserved, nil
	}
	if !opts.IgnoreExclusions && a.Exclusions.IsExcluded(p) {
		return Excluded, nil
	}
	if !opts.IgnoreOccupied {
		occ, err := a.Checker.IsOccupied(p, cfg)
		if err != nil {
			return Occupied, nil
		}
		if occ {
			return Occupied, nil
		}
	}
	return Available, nil
}

// AllocateSingle runs the single-port allocation algorithm: honor a
// preferred port if present and acceptable under the ignore flags,
// otherwise scan the range ascending and return the first available
// port (the smallest port simultaneously unreserved, unexcluded, and
// unoccupied).
func (a *Allocator) AllocateSingle(store ReservedChecker, opts AllocationOptions, cfg CheckConfig) (Result, error) {
	if opts.Preferred != nil {
		pref := *opts.Preferred
		if !a.PortRange.Contains(pref) {
			return Result{Kind: ResultPreferredUnavailable, UnavailablePort: pref, UnavailableReason: Excluded}, nil
		}
		avail, err := a.classify(pref, store, cfg, opts)
		if err != nil {
			return Result{}, err
		}
		if avail != Available {
			return Result{Kind: ResultPreferredUnavailable, UnavailablePort: pref, UnavailableReason: avail}, nil
		}
		return Result{Kind: ResultAllocated, Port: pref}, nil
	}

	for p := a.PortRange.Min; ; p++ {
		avail, err := a.classify(p, store, cfg, opts)
		if err != nil {
			return Result{}, err
		}
		if avail == Available {
			return Result{Kind: ResultAllocated, Port: p}, nil
		}
		if p == a.PortRange.Max {
			break
		}
	}
	return Result{Kind: ResultExhausted}, nil
}
