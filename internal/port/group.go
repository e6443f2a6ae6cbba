package port

import "github.com/websoft9/trop/internal/errs"

// ServiceRequest is one entry in a group allocation request. At least
// one of Offset or Preferred must be set; if both are set, Preferred
// dominates. Tag must be unique within the group.
type ServiceRequest struct {
	Tag       string
	Offset    *uint16
	Preferred *Port
}

// GroupResult maps each service tag to its allocated port, preserving
// the request's declaration order for callers that need it.
type GroupResult struct {
	Tags  []string
	Ports map[string]Port
}

// AllocateGroup satisfies a group request: preferred-only services are
// checked individually first; offset-only services are satisfied by
// finding the smallest base port such that base+offset is available
// for every offset, simultaneously. No partial state is written by
// this function — it only computes the assignment; the caller commits
// it atomically.
func (a *Allocator) AllocateGroup(store ReservedChecker, services []ServiceRequest, ignoreOccupied, ignoreExclusions bool) (GroupResult, error) {
	if len(services) == 0 {
		return GroupResult{}, errs.GroupAllocationFailedf("group request has no services")
	}

	seen := make(map[string]struct{}, len(services))
	for _, s := range services {
		if _, dup := seen[s.Tag]; dup {
			return GroupResult{}, errs.GroupAllocationFailedf("duplicate service tag %q", s.Tag)
		}
		seen[s.Tag] = struct{}{}
		if s.Offset == nil && s.Preferred == nil {
			return GroupResult{}, errs.GroupAllocationFailedf("service %q has neither offset nor preferred port", s.Tag)
		}
	}

	result := GroupResult{Ports: make(map[string]Port, len(services))}
	cfg := CheckConfig{}

	var offsetServices []ServiceRequest
	var maxOffset uint16
	haveOffset := false

	for _, s := range services {
		result.Tags = append(result.Tags, s.Tag)
		if s.Preferred != nil {
			opts := AllocationOptions{Preferred: s.Preferred, IgnoreOccupied: ignoreOccupied, IgnoreExclusions: ignoreExclusions}
			res, err := a.AllocateSingle(store, opts, cfg)
			if err != nil {
				return GroupResult{}, err
			}
			if res.Kind != ResultAllocated {
				return GroupResult{}, errs.GroupAllocationFailedf(
					"preferred port %d for service %q unavailable: %s", *s.Preferred, s.Tag, AvailabilityString(res.UnavailableReason))
			}
			result.Ports[s.Tag] = res.Port
			continue
		}
		offsetServices = append(offsetServices, s)
		if *s.Offset > maxOffset || !haveOffset {
			maxOffset = *s.Offset
			haveOffset = true
		}
	}

	if len(offsetServices) == 0 {
		return result, nil
	}

	base, err := a.findPatternBase(store, offsetServices, maxOffset, ignoreOccupied, ignoreExclusions, cfg)
	if err != nil {
		return GroupResult{}, err
	}

	for _, s := range offsetServices {
		result.Ports[s.Tag] = base + Port(*s.Offset)
	}
	return result, nil
}

// findPatternBase finds the smallest base port b in the allocator's
// range such that b+offset is Available for every offset service,
// bounding the scan at range.Max - maxOffset to avoid overflow past
// the configured range.
func (a *Allocator) findPatternBase(store ReservedChecker, services []ServiceRequest, maxOffset uint16, ignoreOccupied, ignoreExclusions bool, cfg CheckConfig) (Port, error) {
	if uint32(a.PortRange.Max)-uint32(maxOffset) < uint32(a.PortRange.Min) {
		return 0, errs.GroupAllocationFailedf("no base port found: range too small for max offset %d", maxOffset)
	}
	upperBound := Port(uint32(a.PortRange.Max) - uint32(maxOffset))
	opts := AllocationOptions{IgnoreOccupied: ignoreOccupied, IgnoreExclusions: ignoreExclusions}

	for base := a.PortRange.Min; ; base++ {
		ok := true
		for _, s := range services {
			candidate := base + Port(*s.Offset)
			avail, err := a.classify(candidate, store, cfg, opts)
			if err != nil {
				return 0, err
			}
			if avail != Available {
				ok = false
				break
			}
		}
		if ok {
			return base, nil
		}
		if base == upperBound {
			break
		}
	}
	return 0, errs.GroupAllocationFailedf("no base port found")
}
