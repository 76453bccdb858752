package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
	JobStatusDead      = "dead"
)

// Job types handled by the background worker pool.
const (
	JobIngestResource    = "ingest_resource"
	JobCitationResolve   = "citation_resolve"
	JobImportanceCompute = "importance_compute"
	JobQualityScan       = "quality_scan"
)

// JobRun is one unit of background work. Claimed by a worker via an atomic
// status flip; retried with exponential backoff until MaxAttempts, then dead.
type JobRun struct {
	ID      uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobType string         `gorm:"column:job_type;not null;index" json:"job_type"`
	Payload datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`

	Status   string `gorm:"column:status;not null;default:'queued';index" json:"status"`
	Stage    string `gorm:"column:stage" json:"stage"`
	Progress int    `gorm:"column:progress;default:0" json:"progress"`
	Message  string `gorm:"column:message" json:"message"`
	Error    string `gorm:"column:error" json:"error,omitempty"`

	Attempts    int        `gorm:"column:attempts;default:0" json:"attempts"`
	MaxAttempts int        `gorm:"column:max_attempts;default:5" json:"max_attempts"`
	RunAt       time.Time  `gorm:"column:run_at;not null;index" json:"run_at"`
	LockedAt    *time.Time `gorm:"column:locked_at" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time `gorm:"column:heartbeat_at" json:"heartbeat_at,omitempty"`
	LastErrorAt *time.Time `gorm:"column:last_error_at" json:"last_error_at,omitempty"`

	Result datatypes.JSON `gorm:"column:result;type:jsonb" json:"result,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (JobRun) TableName() string { return "job_runs" }
