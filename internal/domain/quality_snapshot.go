package domain

import (
	"time"

	"github.com/google/uuid"
)

// QualitySnapshot is an append-only record of a scoring pass, consumed by the
// degradation scan's rolling-mean comparison.
type QualitySnapshot struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ResourceID uuid.UUID `gorm:"type:uuid;not null;index" json:"resource_id"`

	Accuracy     float64 `gorm:"column:accuracy;not null" json:"accuracy"`
	Completeness float64 `gorm:"column:completeness;not null" json:"completeness"`
	Consistency  float64 `gorm:"column:consistency;not null" json:"consistency"`
	Timeliness   float64 `gorm:"column:timeliness;not null" json:"timeliness"`
	Relevance    float64 `gorm:"column:relevance;not null" json:"relevance"`
	Overall      float64 `gorm:"column:overall;not null" json:"overall"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

func (QualitySnapshot) TableName() string { return "quality_snapshots" }
