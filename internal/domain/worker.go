package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkerStatus is the registration/liveness state of a worker.
type WorkerStatus string

const (
	WorkerActive  WorkerStatus = "active"
	WorkerIdle    WorkerStatus = "idle"
	WorkerError   WorkerStatus = "error"
	WorkerStopped WorkerStatus = "stopped"
)

// Worker is a registered executor pulling fragments from the orchestrator.
type Worker struct {
	ID                uuid.UUID
	TenantID          string
	MachineGroup      string // empty matches only a chain's default machine
	Status            WorkerStatus
	LastHeartbeatAt   time.Time
	CurrentFragmentID *uuid.UUID
}

// IsIdle reports whether the worker currently holds no fragment.
func (w *Worker) IsIdle() bool {
	return w.CurrentFragmentID == nil
}

// IsStale reports whether the worker has missed heartbeats beyond threshold.
func (w *Worker) IsStale(staleThreshold time.Duration, now time.Time) bool {
	return now.Sub(w.LastHeartbeatAt) > staleThreshold
}
