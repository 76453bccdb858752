package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	CitationTypeReference = "reference"
	CitationTypeDataset   = "dataset"
	CitationTypeCode      = "code"
	CitationTypeGeneral   = "general"
)

// Citation is a directed edge from a source resource to a cited target URL.
// TargetResourceID stays nil until the resolution batch matches the target
// URL to a library resource.
type Citation struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SourceResourceID uuid.UUID  `gorm:"type:uuid;not null;index:idx_citation_unique,unique;index" json:"source_resource_id"`
	TargetURL        string     `gorm:"column:target_url;not null;index:idx_citation_unique,unique;index" json:"target_url"`
	TargetResourceID *uuid.UUID `gorm:"type:uuid;index" json:"target_resource_id,omitempty"`

	CitationType    string  `gorm:"column:citation_type;not null;default:'general'" json:"citation_type"`
	ContextSnippet  string  `gorm:"column:context_snippet" json:"context_snippet,omitempty"`
	Position        int     `gorm:"column:position;not null;index:idx_citation_unique,unique" json:"position"`
	ImportanceScore float64 `gorm:"column:importance_score;not null;default:0" json:"importance_score"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Citation) TableName() string { return "citations" }
