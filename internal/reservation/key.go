// Package reservation holds the Reservation and ReservationKey value
// types: the identity and metadata the registry stores per allocated
// port, independent of how that port was chosen or where it is stored.
package reservation

import (
	"strings"

	"github.com/websoft9/trop/internal/errs"
)

// PathResolution marks how a Key's Path was produced by the caller.
// It never affects equality or storage, but operations that enforce
// path-relationship guards want to know whether the path came from an
// explicit user argument or was inferred from the working directory.
type PathResolution int

const (
	// ExplicitPath means the path was user-supplied and normalized but
	// not canonicalized: symlinks are preserved as given.
	ExplicitPath PathResolution = iota
	// ImplicitPath means the path was inferred (e.g. from cwd) and
	// fully canonicalized, following symlinks.
	ImplicitPath
)

// Key identifies a reservation: an absolute path plus an optional tag.
// Two keys with the same Path and Tag are the same reservation; a
// present-but-empty Tag is never valid (use NoTag).
type Key struct {
	Path       string
	Tag        string
	HasTag     bool
	Resolution PathResolution
}

// NoTag constructs a tagless key. path must already be absolute; res
// records whether the caller canonicalized it.
func NoTag(path string, res PathResolution) (Key, error) {
	return newKey(path, "", false, res)
}

// WithTag constructs a tagged key. tag is trimmed; an empty or
// whitespace-only tag is rejected rather than silently treated as
// tagless, to catch accidental `--tag " "` typos.
func WithTag(path, tag string, res PathResolution) (Key, error) {
	return newKey(path, tag, true, res)
}

func newKey(path, tag string, hasTag bool, res PathResolution) (Key, error) {
	if strings.TrimSpace(path) == "" {
		return Key{}, errs.Validationf("path", "reservation path must not be empty")
	}
	if hasTag {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return Key{}, errs.Validationf("tag", "tag must not be empty or whitespace-only")
		}
	}
	return Key{Path: path, Tag: tag, HasTag: hasTag, Resolution: res}, nil
}

// Equal reports identity equality: same path and same tag state,
// treating two tagless keys as equal regardless of Resolution (the
// resolution kind is provenance, not part of the identity).
func (k Key) Equal(other Key) bool {
	return k.Path == other.Path && k.HasTag == other.HasTag && k.Tag == other.Tag
}

// String renders the key the way the CLI and audit log display it:
// "path" or "path#tag".
func (k Key) String() string {
	if k.HasTag {
		return k.Path + "#" + k.Tag
	}
	return k.Path
}
