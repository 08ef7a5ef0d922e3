// Package models holds the bun ORM row types backing Vulcan CI's persistent
// state store.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ChainModel is the durable row for a single workflow execution attempt.
type ChainModel struct {
	bun.BaseModel `bun:"table:chains,alias:c"`

	ID             uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	TenantID       string    `bun:"tenant_id,notnull"`
	Status         string    `bun:"status,notnull,default:'pending'"`
	Attempt        int       `bun:"attempt,notnull,default:1"`
	SourcePath     string    `bun:"source_path"`
	RepositoryURL  string    `bun:"repository_url"`
	CommitSHA      string    `bun:"commit_sha"`
	Branch         string    `bun:"branch"`
	TriggerKind    string    `bun:"trigger_kind"`
	TriggerRef     string    `bun:"trigger_ref"`
	PRNumber       string    `bun:"pr_number"`
	DefaultMachine string    `bun:"default_machine,notnull"`

	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	StartedAt   *time.Time `bun:"started_at"`
	CompletedAt *time.Time `bun:"completed_at"`

	Fragments []*FragmentModel `bun:"rel:has-many,join:id=chain_id"`
}

func (c *ChainModel) BeforeInsert(ctx interface{}) error {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *ChainModel) BeforeUpdate(ctx interface{}) error {
	c.UpdatedAt = time.Now()
	return nil
}
