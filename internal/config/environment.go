package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/websoft9/trop/internal/errs"
	"github.com/websoft9/trop/internal/port"
)

// envPrefix namespaces every recognized variable; chosen distinct from
// any one source project's historical naming.
const envPrefix = "PORTREG_"

// ApplyEnvironment overlays recognized process environment variables
// onto an already-merged Config, per the fixed variable table. lookup
// is injected for testability; production callers pass os.LookupEnv.
func ApplyEnvironment(c Config, lookup func(string) (string, bool)) (Config, error) {
	out := c

	if v, ok := lookup(envPrefix + "PROJECT"); ok {
		out.Project = &v
	}

	for name, dst := range map[string]**bool{
		envPrefix + "DISABLE_AUTOINIT":   &out.DisableAutoinit,
		envPrefix + "DISABLE_AUTOPRUNE":  &out.DisableAutoprune,
		envPrefix + "DISABLE_AUTOEXPIRE": &out.DisableAutoexpire,
	} {
		if err := overlayBool(lookup, name, dst); err != nil {
			return Config{}, err
		}
	}

	if v, ok := lookup(envPrefix + "PORT_MIN"); ok {
		n, err := cast.ToUint16E(v)
		if err != nil {
			return Config{}, errs.Validationf(envPrefix+"PORT_MIN", "invalid port: %v", err)
		}
		out.Ports.Min = &n
	}
	if v, ok := lookup(envPrefix + "PORT_MAX"); ok {
		n, err := cast.ToUint16E(v)
		if err != nil {
			return Config{}, errs.Validationf(envPrefix+"PORT_MAX", "invalid port: %v", err)
		}
		out.Ports.Max = &n
	}

	if v, ok := lookup(envPrefix + "EXCLUDED_PORTS"); ok {
		entries, err := parsePortList(v)
		if err != nil {
			return Config{}, err
		}
		out.ExcludedPorts = append(out.ExcludedPorts, entries...)
	}

	if v, ok := lookup(envPrefix + "EXPIRE_AFTER_DAYS"); ok {
		n, err := cast.ToIntE(v)
		if err != nil || n <= 0 {
			return Config{}, errs.Validationf(envPrefix+"EXPIRE_AFTER_DAYS", "must be a positive integer, got %q", v)
		}
		if out.Cleanup == nil {
			out.Cleanup = &CleanupConfig{}
		} else {
			clone := *out.Cleanup
			out.Cleanup = &clone
		}
		out.Cleanup.ExpireAfterDays = &n
	}

	if v, ok := lookup(envPrefix + "MAXIMUM_LOCK_WAIT_SECONDS"); ok {
		n, err := cast.ToIntE(v)
		if err != nil || n <= 0 {
			return Config{}, errs.Validationf(envPrefix+"MAXIMUM_LOCK_WAIT_SECONDS", "must be a positive integer, got %q", v)
		}
		out.MaximumLockWaitSeconds = &n
	}

	defaults := ReserveDefaults{}
	if out.Defaults != nil {
		defaults = *out.Defaults
	}
	defaultsChanged := false
	for name, dst := range map[string]**bool{
		envPrefix + "ALLOW_UNRELATED_PATH": &defaults.AllowUnrelatedPath,
		envPrefix + "ALLOW_CHANGE_PROJECT": &defaults.AllowChangeProject,
		envPrefix + "ALLOW_CHANGE_TASK":    &defaults.AllowChangeTask,
		envPrefix + "ALLOW_CHANGE":         &defaults.AllowChange,
	} {
		before := *dst
		if err := overlayBool(lookup, name, dst); err != nil {
			return Config{}, err
		}
		if *dst != before {
			defaultsChanged = true
		}
	}
	if defaultsChanged {
		out.Defaults = &defaults
	}

	occ := OccupancyConfig{}
	if out.Occupancy != nil {
		occ = *out.Occupancy
	}
	occChanged := false
	for name, dst := range map[string]**bool{
		envPrefix + "SKIP_OCCUPANCY_CHECK": &occ.Skip,
		envPrefix + "SKIP_IPV4":            &occ.SkipIP4,
		envPrefix + "SKIP_IPV6":            &occ.SkipIP6,
		envPrefix + "SKIP_TCP":             &occ.SkipTCP,
		envPrefix + "SKIP_UDP":             &occ.SkipUDP,
		envPrefix + "CHECK_ALL_INTERFACES":  &occ.CheckAllInterfaces,
	} {
		before := *dst
		if err := overlayBool(lookup, name, dst); err != nil {
			return Config{}, err
		}
		if *dst != before {
			occChanged = true
		}
	}
	if occChanged {
		out.Occupancy = &occ
	}

	return out, nil
}

func overlayBool(lookup func(string) (string, bool), name string, dst **bool) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}
	b, err := parseEnvBool(v)
	if err != nil {
		return errs.Validationf(name, "%v", err)
	}
	*dst = &b
	return nil
}

// parseEnvBool implements the fixed truthy/falsy token set, case
// insensitive; anything else is rejected rather than guessed at.
func parseEnvBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, errs.Validationf("", "invalid boolean value %q", raw)
	}
}

// parsePortList parses a comma-separated list of ports and "A..B"
// ranges. Whitespace around tokens is tolerated; duplicates across
// tokens are preserved, never deduplicated here.
func parsePortList(raw string) ([]port.Exclusion, error) {
	var out []port.Exclusion
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if start, end, ok := strings.Cut(tok, ".."); ok {
			s, err := strconv.ParseUint(strings.TrimSpace(start), 10, 16)
			if err != nil {
				return nil, errs.Validationf("excluded_ports", "invalid range %q: %v", tok, err)
			}
			e, err := strconv.ParseUint(strings.TrimSpace(end), 10, 16)
			if err != nil {
				return nil, errs.Validationf("excluded_ports", "invalid range %q: %v", tok, err)
			}
			out = append(out, port.Exclusion{Kind: port.ExclRange, Start: uint16(s), End: uint16(e)})
			continue
		}
		v, err := strconv.ParseUint(tok, 10, 16)
		if err != nil {
			return nil, errs.Validationf("excluded_ports", "invalid port %q: %v", tok, err)
		}
		out = append(out, port.Exclusion{Kind: port.Single, Port: uint16(v)})
	}
	return out, nil
}

// OSLookup adapts os.LookupEnv to the lookup signature ApplyEnvironment
// expects.
func OSLookup(name string) (string, bool) {
	return os.LookupEnv(name)
}
