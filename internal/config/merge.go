package config

// Merge combines layered partial configs into one, applying each
// source in increasing precedence order (sources[0] is lowest
// precedence, sources[len-1] highest). Field rules:
//
//   - scalars and optional substructs: a later source's non-nil value
//     replaces the accumulator's; nil leaves the accumulator alone.
//   - ExcludedPorts: every source's list is concatenated, in order;
//     deduplication is the exclusion manager's job (Manager.Compact).
//   - Occupancy: replaced wholesale when a source sets it at all — no
//     per-field merge of the booleans inside.
//   - Reservations: not merged; only the topmost (highest-precedence)
//     source that sets it contributes — a later source with a non-nil
//     Reservations replaces an earlier one.
//   - Defaults: merged per field, same as the top-level scalars — a
//     later source only overrides the allow-flags it actually sets.
//   - Ports: partially merged — Min takes the last source that sets
//     it; Max and MaxOffset each take "source if present else
//     accumulator".
func Merge(sources ...Config) Config {
	var out Config

	for _, src := range sources {
		if src.Project != nil {
			out.Project = src.Project
		}
		if src.DisableAutoinit != nil {
			out.DisableAutoinit = src.DisableAutoinit
		}
		if src.DisableAutoprune != nil {
			out.DisableAutoprune = src.DisableAutoprune
		}
		if src.DisableAutoexpire != nil {
			out.DisableAutoexpire = src.DisableAutoexpire
		}

		if src.Ports.Min != nil {
			out.Ports.Min = src.Ports.Min
		}
		if src.Ports.Max != nil {
			out.Ports.Max = src.Ports.Max
		}
		if src.Ports.MaxOffset != nil {
			out.Ports.MaxOffset = src.Ports.MaxOffset
		}

		out.ExcludedPorts = append(out.ExcludedPorts, src.ExcludedPorts...)

		if src.Occupancy != nil {
			out.Occupancy = src.Occupancy
		}
		if src.Cleanup != nil {
			out.Cleanup = src.Cleanup
		}
		if src.Defaults != nil {
			if out.Defaults == nil {
				out.Defaults = &ReserveDefaults{}
			}
			if src.Defaults.AllowUnrelatedPath != nil {
				out.Defaults.AllowUnrelatedPath = src.Defaults.AllowUnrelatedPath
			}
			if src.Defaults.AllowChangeProject != nil {
				out.Defaults.AllowChangeProject = src.Defaults.AllowChangeProject
			}
			if src.Defaults.AllowChangeTask != nil {
				out.Defaults.AllowChangeTask = src.Defaults.AllowChangeTask
			}
			if src.Defaults.AllowChange != nil {
				out.Defaults.AllowChange = src.Defaults.AllowChange
			}
		}
		if src.Reservations != nil {
			out.Reservations = src.Reservations
		}
		if src.MaximumLockWaitSeconds != nil {
			out.MaximumLockWaitSeconds = src.MaximumLockWaitSeconds
		}
	}
	return out
}
