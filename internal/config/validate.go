package config

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/websoft9/trop/internal/errs"
	"github.com/websoft9/trop/internal/port"
)

var envVarNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate turns a merged Config into a Resolved engine configuration,
// or the first structural violation found as an *errs.Error.
func Validate(c Config) (Resolved, error) {
	var out Resolved

	if c.Project != nil {
		if err := validateIdentifier("project", *c.Project); err != nil {
			return Resolved{}, err
		}
		out.Project = *c.Project
	}

	out.DisableAutoinit = boolVal(c.DisableAutoinit)
	out.DisableAutoprune = boolVal(c.DisableAutoprune)
	out.DisableAutoexpire = boolVal(c.DisableAutoexpire)

	if c.Ports.Min == nil {
		return Resolved{}, errs.Validationf("ports.min", "port range minimum is required")
	}
	if c.Ports.Max != nil && c.Ports.MaxOffset != nil {
		return Resolved{}, errs.Validationf("ports", "exactly one of max or max_offset must be set, not both")
	}
	if c.Ports.Max == nil && c.Ports.MaxOffset == nil {
		return Resolved{}, errs.Validationf("ports", "exactly one of max or max_offset must be set")
	}
	min := int(*c.Ports.Min)
	var max int
	if c.Ports.Max != nil {
		max = int(*c.Ports.Max)
	} else {
		max = min + int(*c.Ports.MaxOffset)
	}
	r, err := port.NewRange(min, max)
	if err != nil {
		return Resolved{}, err
	}
	out.PortRange = r

	for _, excl := range c.ExcludedPorts {
		if err := excl.Validate(); err != nil {
			return Resolved{}, err
		}
	}
	out.Exclusions = port.NewManager(c.ExcludedPorts)

	if c.Occupancy != nil {
		out.Occupancy = *c.Occupancy
	}

	if c.Cleanup != nil {
		if c.Cleanup.ExpireAfterDays != nil && *c.Cleanup.ExpireAfterDays <= 0 {
			return Resolved{}, errs.Validationf("cleanup.expire_after_days", "must be strictly positive, got %d", *c.Cleanup.ExpireAfterDays)
		}
		out.Cleanup = *c.Cleanup
	}

	if c.Defaults != nil {
		out.Defaults = *c.Defaults
	}

	if c.Reservations != nil {
		if err := validateReservationGroup(*c.Reservations); err != nil {
			return Resolved{}, err
		}
		out.Reservations = c.Reservations
	}

	waitSecs := 30
	if c.MaximumLockWaitSeconds != nil {
		waitSecs = *c.MaximumLockWaitSeconds
	}
	if waitSecs <= 0 {
		return Resolved{}, errs.Validationf("maximum_lock_wait_seconds", "must be strictly positive, got %d", waitSecs)
	}
	out.MaximumLockWaitSeconds = waitSecs

	return out, nil
}

func validateIdentifier(field, value string) error {
	if err := validation.Validate(value,
		validation.Required,
		validation.Length(1, 255),
	); err != nil {
		return errs.Validationf(field, "%v", err)
	}
	if strings.IndexByte(value, 0) >= 0 {
		return errs.Validationf(field, "must not contain null bytes")
	}
	return nil
}

func validateReservationGroup(g ReservationGroup) error {
	if len(g.Services) == 0 {
		return nil
	}

	seenOffsets := make(map[uint16]string)
	seenPreferred := make(map[uint16]string)
	seenEnvVars := make(map[string]string)

	for tag, svc := range g.Services {
		if svc.EnvVar != nil {
			name := *svc.EnvVar
			if err := validation.Validate(name, validation.Match(envVarNameRE)); err != nil {
				return errs.Validationf("reservations.services."+tag+".env", "invalid environment variable name %q: %v", name, err)
			}
			if other, dup := seenEnvVars[name]; dup {
				return errs.Validationf("reservations.services."+tag+".env", "env var %q reused by service %q", name, other)
			}
			seenEnvVars[name] = tag
		}

		if svc.Preferred != nil {
			if other, dup := seenPreferred[*svc.Preferred]; dup {
				return errs.Validationf("reservations.services."+tag+".preferred", "preferred port %d reused by service %q", *svc.Preferred, other)
			}
			seenPreferred[*svc.Preferred] = tag
			continue
		}

		offset := uint16(0)
		if svc.Offset != nil {
			offset = *svc.Offset
		}
		if other, dup := seenOffsets[offset]; dup {
			return errs.Validationf("reservations.services."+tag+".offset", "offset %d reused by service %q", offset, other)
		}
		seenOffsets[offset] = tag
	}
	return nil
}
