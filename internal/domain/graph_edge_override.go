package domain

import (
	"time"

	"github.com/google/uuid"
)

// Graph edge types. Weights per type are fixed formulas except for
// content_similarity, which carries the raw cosine.
const (
	EdgeCitation          = "citation"
	EdgeCoAuthorship      = "co_authorship"
	EdgeSubjectSimilarity = "subject_similarity"
	EdgeTemporal          = "temporal"
	EdgeContentSimilarity = "content_similarity"
)

// GraphEdgeOverride stores a multiplicative weight delta produced by
// hypothesis validation feedback. Deltas survive snapshot recomputation:
// the effective edge weight is min(1, base_weight * delta).
type GraphEdgeOverride struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SourceID uuid.UUID `gorm:"type:uuid;not null;index:idx_edge_override,unique" json:"source_id"`
	TargetID uuid.UUID `gorm:"type:uuid;not null;index:idx_edge_override,unique" json:"target_id"`
	EdgeType string    `gorm:"column:edge_type;not null;index:idx_edge_override,unique" json:"edge_type"`
	Delta    float64   `gorm:"column:delta;not null;default:1" json:"delta"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (GraphEdgeOverride) TableName() string { return "graph_edge_overrides" }
