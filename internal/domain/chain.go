// Package domain defines the core Vulcan CI entities: chains, fragments, and workers.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChainStatus is the lifecycle state of a chain.
type ChainStatus string

const (
	ChainPending   ChainStatus = "pending"
	ChainRunning   ChainStatus = "running"
	ChainCompleted ChainStatus = "completed"
	ChainFailed    ChainStatus = "failed"
	ChainActive    ChainStatus = "active"
	ChainSuspended ChainStatus = "suspended"
	ChainError     ChainStatus = "error"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ChainStatus) IsTerminal() bool {
	return s == ChainCompleted || s == ChainFailed
}

// TriggerKind identifies what caused a chain to be submitted.
type TriggerKind string

const (
	TriggerPush        TriggerKind = "push"
	TriggerPullRequest TriggerKind = "pull_request"
	TriggerTag         TriggerKind = "tag"
	TriggerSchedule    TriggerKind = "schedule"
	TriggerManual      TriggerKind = "manual"
)

// Provenance records where a chain's workflow document and trigger came from.
type Provenance struct {
	SourcePath    string
	RepositoryURL string
	CommitSHA     string
	Branch        string
	TriggerKind   TriggerKind
	TriggerRef    string
	PRNumber      string
}

// EnvVars exposes the chain-level environment used for condition evaluation,
// referenced as $BRANCH, $TRIGGER, $COMMIT_SHA, $PR_NUMBER in workflow documents.
func (p Provenance) EnvVars() map[string]string {
	return map[string]string{
		"BRANCH":     p.Branch,
		"TRIGGER":    string(p.TriggerKind),
		"COMMIT_SHA": p.CommitSHA,
		"PR_NUMBER":  p.PRNumber,
	}
}

// Chain is a single workflow execution attempt; the root scope of a fragment tree.
type Chain struct {
	ID             uuid.UUID
	TenantID       string
	Status         ChainStatus
	Attempt        int
	Provenance     Provenance
	DefaultMachine string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// NewChain constructs a chain in its initial pending state.
func NewChain(tenantID, defaultMachine string, prov Provenance) *Chain {
	now := time.Now()
	return &Chain{
		ID:             uuid.New(),
		TenantID:       tenantID,
		Status:         ChainPending,
		Attempt:        1,
		Provenance:     prov,
		DefaultMachine: defaultMachine,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
