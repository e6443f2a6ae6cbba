package reservation

import (
	"strings"

	"github.com/websoft9/trop/internal/errs"
)

const maxMetadataBytes = 255

// Reservation is a Key bound to a port plus the metadata the registry
// tracks about it. Two reservations are Equal iff every field matches,
// apart from Sticky and the key's Resolution.
type Reservation struct {
	Key         Key
	Port        uint16
	Project     string
	HasProject  bool
	Task        string
	HasTask     bool
	CreatedAt   int64
	LastUsedAt  int64
	Sticky      bool
}

// Builder assembles a Reservation field by field, validating metadata
// as it's set rather than deferring everything to a final Build call.
type Builder struct {
	r   Reservation
	err error
}

// New starts a builder for a reservation at key/port, with CreatedAt
// and LastUsedAt both defaulted to now (overridable via WithTimestamps,
// which migration uses to preserve the source reservation's history).
func New(key Key, port uint16, now int64) *Builder {
	return &Builder{r: Reservation{Key: key, Port: port, CreatedAt: now, LastUsedAt: now}}
}

// WithProject sets the project field; an empty string clears it.
func (b *Builder) WithProject(project string) *Builder {
	if b.err != nil {
		return b
	}
	project = strings.TrimSpace(project)
	if project == "" {
		b.r.HasProject = false
		b.r.Project = ""
		return b
	}
	if err := validateMetadata("project", project); err != nil {
		b.err = err
		return b
	}
	b.r.Project = project
	b.r.HasProject = true
	return b
}

// WithTask sets the task field; an empty string clears it.
func (b *Builder) WithTask(task string) *Builder {
	if b.err != nil {
		return b
	}
	task = strings.TrimSpace(task)
	if task == "" {
		b.r.HasTask = false
		b.r.Task = ""
		return b
	}
	if err := validateMetadata("task", task); err != nil {
		b.err = err
		return b
	}
	b.r.Task = task
	b.r.HasTask = true
	return b
}

// Sticky sets the Sticky field. The planner does not read it: project
// and task changes are guarded on every existing reservation.
func (b *Builder) Sticky(v bool) *Builder {
	b.r.Sticky = v
	return b
}

// WithTimestamps overrides CreatedAt/LastUsedAt, used by migration to
// carry a source reservation's history onto its new key.
func (b *Builder) WithTimestamps(createdAt, lastUsedAt int64) *Builder {
	b.r.CreatedAt = createdAt
	b.r.LastUsedAt = lastUsedAt
	return b
}

// Build returns the assembled Reservation, or the first validation
// error encountered while setting its fields.
func (b *Builder) Build() (Reservation, error) {
	if b.err != nil {
		return Reservation{}, b.err
	}
	return b.r, nil
}

func validateMetadata(field, value string) error {
	if strings.IndexByte(value, 0) >= 0 {
		return errs.Validationf(field, "%s must not contain null bytes", field)
	}
	if len(value) > maxMetadataBytes {
		return errs.Validationf(field, "%s exceeds %d bytes", field, maxMetadataBytes)
	}
	return nil
}

// IsExpired reports whether the reservation's LastUsedAt is older than
// maxAgeSecs relative to now.
func (r Reservation) IsExpired(now int64, maxAgeSecs int64) bool {
	return r.LastUsedAt < now-maxAgeSecs
}

// Equal reports whether two reservations are identical in every field.
func (r Reservation) Equal(other Reservation) bool {
	return r.Key.Equal(other.Key) &&
		r.Port == other.Port &&
		r.HasProject == other.HasProject && r.Project == other.Project &&
		r.HasTask == other.HasTask && r.Task == other.Task &&
		r.CreatedAt == other.CreatedAt &&
		r.LastUsedAt == other.LastUsedAt
}

// ProjectChanged reports whether setting newProject (trimmed; empty
// clears) on r would count as a sticky-field change under the
// None<->Some(a)<->Some(b) matrix: None->None and Some(a)->Some(a) are
// not changes; everything else is.
func (r Reservation) ProjectChanged(newProject string, hasNew bool) bool {
	newProject = strings.TrimSpace(newProject)
	hasNew = hasNew && newProject != ""
	return r.HasProject != hasNew || (hasNew && r.Project != newProject)
}

// TaskChanged is the Task analogue of ProjectChanged.
func (r Reservation) TaskChanged(newTask string, hasNew bool) bool {
	newTask = strings.TrimSpace(newTask)
	hasNew = hasNew && newTask != ""
	return r.HasTask != hasNew || (hasNew && r.Task != newTask)
}
