package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WorkerModel is the durable row for a registered executor.
type WorkerModel struct {
	bun.BaseModel `bun:"table:workers,alias:wk"`

	ID                uuid.UUID  `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	TenantID          string     `bun:"tenant_id,notnull"`
	MachineGroup      string     `bun:"machine_group"`
	Status            string     `bun:"status,notnull,default:'active'"`
	LastHeartbeatAt   time.Time  `bun:"last_heartbeat_at,notnull,default:current_timestamp"`
	CurrentFragmentID *uuid.UUID `bun:"current_fragment_id"`
}
