// Package cleanup implements the prune, expire, and autoclean
// operations of spec §4.7: recycling reservations for vanished paths
// and reservations that have gone unused past a configured age.
package cleanup

import (
	"os"

	"github.com/websoft9/trop/internal/reservation"
)

// Store is the read/write surface cleanup needs from the registry.
// Deletions are each individually atomic but the batch is not
// transactional, per spec §4.7's documented restartability rationale.
type Store interface {
	ListAll() ([]reservation.Reservation, error)
	FindExpired(now int64, maxAgeSecs int64) ([]reservation.Reservation, error)
	Delete(key reservation.Key) (bool, error)
}

// Result reports what was (or, for a dry run, would be) removed.
type Result struct {
	Removed []reservation.Reservation
	Count   int
}

// AutocleanResult combines a Prune and an Expire pass.
type AutocleanResult struct {
	Prune  Result
	Expire Result
	Total  int
}

// Engine runs the three cleanup operations against a Store.
type Engine struct {
	Store Store

	// Stat probes whether path is reachable; nil uses os.Stat. Tests
	// substitute a fake so prune doesn't depend on the real
	// filesystem.
	Stat func(path string) error

	// Now supplies the current time for the expire cutoff; nil uses 0,
	// which puts the registry's cutoff below every stored timestamp so
	// nothing is found expired. Production callers pass registry.Now.
	Now func() int64
}

func (e *Engine) stat(path string) error {
	if e.Stat != nil {
		return e.Stat(path)
	}
	_, err := os.Stat(path)
	return err
}

func (e *Engine) now() int64 {
	if e.Now != nil {
		return e.Now()
	}
	return 0
}

// Prune removes reservations whose path is no longer reachable on
// disk. A stat failure with anything other than "not found" — a
// permission or I/O error — is fail-open: the reservation is kept,
// because the engine must never delete what it cannot verify.
func (e *Engine) Prune(dryRun bool) (Result, error) {
	all, err := e.Store.ListAll()
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, r := range all {
		err := e.stat(r.Key.Path)
		if err == nil {
			continue
		}
		if os.IsNotExist(err) {
			res.Removed = append(res.Removed, r)
			continue
		}
		// fail-open: permission/IO errors keep the reservation.
	}
	res.Count = len(res.Removed)

	if dryRun {
		return res, nil
	}
	for _, r := range res.Removed {
		if _, err := e.Store.Delete(r.Key); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Expire removes reservations unused for longer than expireAfterDays.
// expireAfterDays <= 0 means the threshold is unset, in which case
// Expire is a no-op (matching CleanupConfig.ExpireAfterDays being
// optional).
func (e *Engine) Expire(expireAfterDays int, dryRun bool) (Result, error) {
	if expireAfterDays <= 0 {
		return Result{}, nil
	}
	maxAgeSecs := int64(expireAfterDays) * 86400

	expired, err := e.Store.FindExpired(e.now(), maxAgeSecs)
	if err != nil {
		return Result{}, err
	}
	res := Result{Removed: expired, Count: len(expired)}

	if dryRun {
		return res, nil
	}
	for _, r := range res.Removed {
		if _, err := e.Store.Delete(r.Key); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Autoclean runs Prune followed by Expire and reports both counts
// plus the combined total.
func (e *Engine) Autoclean(expireAfterDays int, dryRun bool) (AutocleanResult, error) {
	pr, err := e.Prune(dryRun)
	if err != nil {
		return AutocleanResult{}, err
	}
	er, err := e.Expire(expireAfterDays, dryRun)
	if err != nil {
		return AutocleanResult{Prune: pr}, err
	}
	return AutocleanResult{Prune: pr, Expire: er, Total: pr.Count + er.Count}, nil
}
