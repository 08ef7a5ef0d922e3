package domain

import (
	"time"

	"github.com/google/uuid"
)

// FragmentKind distinguishes a leaf script from a container of children.
type FragmentKind string

const (
	FragmentInline FragmentKind = "inline"
	FragmentGroup  FragmentKind = "group"
)

// FragmentStatus is the execution state of a fragment.
type FragmentStatus string

const (
	FragmentPending   FragmentStatus = "pending"
	FragmentRunning   FragmentStatus = "running"
	FragmentCompleted FragmentStatus = "completed"
	FragmentFailed    FragmentStatus = "failed"
	FragmentActive    FragmentStatus = "active"
	FragmentSuspended FragmentStatus = "suspended"
	FragmentError     FragmentStatus = "error"
	FragmentSkipped   FragmentStatus = "skipped"
)

// IsTerminal reports whether rollup treats this status as settled.
// Skipped counts as terminal/completed for rollup purposes (spec §4.2) even
// though it is tracked as its own status for reporting.
func (s FragmentStatus) IsTerminal() bool {
	return s == FragmentCompleted || s == FragmentFailed || s == FragmentSkipped
}

// Fragment is a node in a chain's execution tree.
type Fragment struct {
	ID       uuid.UUID
	ChainID  uuid.UUID
	ParentID *uuid.UUID
	Sequence int

	Kind FragmentKind

	// inline-only
	Script          string
	MachineOverride string

	// group-only
	IsParallel bool

	Condition string
	SourceURL string

	Status           FragmentStatus
	AssignedWorkerID *uuid.UUID
	StartedAt        *time.Time
	CompletedAt      *time.Time
	ExitCode         *int
	ErrorMessage     string
	StdoutTail       string
	StderrTail       string
	Attempt          int
}

// EffectiveMachine returns the machine group this fragment dispatches to,
// falling back to the chain's default when the fragment carries none.
func (f *Fragment) EffectiveMachine(chainDefault string) string {
	if f.MachineOverride != "" {
		return f.MachineOverride
	}
	return chainDefault
}

// IsReady reports whether this fragment passes the kind/status part of the
// dispatch readiness check. Sibling/condition evaluation is the caller's
// responsibility (it requires tree context); this only checks the fragment's
// own kind and status, per spec §4.2 points 1-2.
func (f *Fragment) IsReady() bool {
	return f.Kind == FragmentInline && f.Status == FragmentPending
}
