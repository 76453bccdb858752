package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TaxonomyNode is a category in the hierarchical classification tree.
// Invariants enforced in the service layer: no cycles, depth ≤ 10.
type TaxonomyNode struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string         `gorm:"column:name;not null;index" json:"name"`
	ParentID    *uuid.UUID     `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	Description string         `gorm:"column:description" json:"description,omitempty"`
	Keywords    datatypes.JSON `gorm:"column:keywords;type:jsonb" json:"keywords"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (TaxonomyNode) TableName() string { return "taxonomy_nodes" }

func (n *TaxonomyNode) KeywordList() []string {
	return decodeStrings(n.Keywords)
}

// ResourceTaxonomyAssignment records a per-resource classification with its
// confidence. Assignments between 0.3 and 0.7 are flagged for review.
type ResourceTaxonomyAssignment struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ResourceID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_resource_taxonomy,unique" json:"resource_id"`
	NodeID      *uuid.UUID `gorm:"type:uuid;index:idx_resource_taxonomy,unique" json:"node_id,omitempty"`
	Code        string     `gorm:"column:code;index:idx_resource_taxonomy,unique" json:"code,omitempty"`
	Confidence  float64    `gorm:"column:confidence;not null;default:0" json:"confidence"`
	NeedsReview bool       `gorm:"column:needs_review;default:false" json:"needs_review"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ResourceTaxonomyAssignment) TableName() string { return "resource_taxonomy_assignments" }
