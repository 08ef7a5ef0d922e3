package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// FragmentModel is the durable row for one node in a chain's execution tree.
type FragmentModel struct {
	bun.BaseModel `bun:"table:fragments,alias:f"`

	ID       uuid.UUID  `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	ChainID  uuid.UUID  `bun:"chain_id,notnull"`
	ParentID *uuid.UUID `bun:"parent_id"`
	Sequence int        `bun:"sequence,notnull"`

	Kind string `bun:"kind,notnull"`

	Script          string `bun:"script"`
	MachineOverride string `bun:"machine_override"`

	IsParallel bool `bun:"is_parallel,notnull,default:false"`

	Condition string `bun:"condition"`
	SourceURL string `bun:"source_url"`

	Status           string     `bun:"status,notnull,default:'pending'"`
	AssignedWorkerID *uuid.UUID `bun:"assigned_worker_id"`
	StartedAt        *time.Time `bun:"started_at"`
	CompletedAt      *time.Time `bun:"completed_at"`
	ExitCode         *int       `bun:"exit_code"`
	ErrorMessage     string     `bun:"error_message"`
	StdoutTail       string     `bun:"stdout_tail"`
	StderrTail       string     `bun:"stderr_tail"`
	Attempt          int        `bun:"attempt,notnull,default:1"`

	Chain *ChainModel `bun:"rel:belongs-to,join:chain_id=id"`
}
