// Package ops builds and executes reservation plans: the planner
// reads a store view and produces a declarative, pure-data Plan; the
// executor applies a Plan's actions under a caller-managed
// transaction. Splitting the two lets a caller inspect or log a plan
// (dry-run) before anything is written, per spec §4.5.3/§4.6.
package ops

import (
	"github.com/websoft9/trop/internal/port"
	"github.com/websoft9/trop/internal/reservation"
)

// View is the read-only surface the planner needs from the registry
// store: whether a port is taken, and the reservation at a key, if
// any. Both registry.Store and registry.Tx satisfy it structurally.
type View interface {
	port.ReservedChecker
	GetByKey(key reservation.Key) (reservation.Reservation, bool, error)
}

// Txn is the read/write surface the executor needs; it extends View
// with the mutating primitives the registry store exposes. Both
// registry.Store (auto-commit) and registry.Tx (transaction-scoped)
// satisfy it.
type Txn interface {
	View
	TryCreateAtomic(r reservation.Reservation) (bool, error)
	UpsertByKey(r reservation.Reservation) error
	UpdateLastUsed(key reservation.Key, now int64) (bool, error)
	Delete(key reservation.Key) (bool, error)
}

// ActionKind discriminates one step of a Plan.
type ActionKind int

const (
	ActionCreate ActionKind = iota
	ActionUpdate
	ActionUpdateLastUsed
	ActionDelete
	ActionAllocateGroup
)

func (k ActionKind) String() string {
	switch k {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionUpdateLastUsed:
		return "update_last_used"
	case ActionDelete:
		return "delete"
	case ActionAllocateGroup:
		return "allocate_group"
	default:
		return "unknown"
	}
}

// GroupRequest describes a linked-port allocation: every service gets
// its own reservation, keyed by (BasePath, serviceTag), sharing
// Project/Task, allocated and created atomically by the executor.
type GroupRequest struct {
	BasePath         string
	Project          string
	HasProject       bool
	Task             string
	HasTask          bool
	Services         []port.ServiceRequest
	IgnoreOccupied   bool
	IgnoreExclusions bool
}

// Action is one typed step of a Plan. Only the fields relevant to
// Kind are meaningful; Description is always set for logging.
type Action struct {
	Kind        ActionKind
	Description string

	Reservation reservation.Reservation // ActionCreate, ActionUpdate
	Key         reservation.Key         // ActionUpdateLastUsed, ActionDelete
	Group       *GroupRequest           // ActionAllocateGroup
}

// Plan is an ordered, pure-data sequence of actions plus warnings that
// must reach the caller but do not themselves abort execution.
// Building a Plan only reads the store; it never mutates it.
type Plan struct {
	Actions  []Action
	Warnings []string
}
