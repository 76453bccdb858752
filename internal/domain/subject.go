package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuthoritySubject is a canonical topic label shared across resources.
type AuthoritySubject struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CanonicalForm string    `gorm:"column:canonical_form;not null;uniqueIndex" json:"canonical_form"`
	UsageCount    int       `gorm:"column:usage_count;not null;default:0" json:"usage_count"`

	Variants []AuthoritySubjectVariant `gorm:"foreignKey:SubjectID;references:ID;constraint:OnDelete:CASCADE" json:"variants,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (AuthoritySubject) TableName() string { return "authority_subjects" }

// AuthoritySubjectVariant records a surface form that resolved to a canonical
// subject. Variants never overlap across distinct authority entries.
type AuthoritySubjectVariant struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SubjectID uuid.UUID `gorm:"type:uuid;not null;index" json:"subject_id"`
	Variant   string    `gorm:"column:variant;not null;uniqueIndex" json:"variant"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (AuthoritySubjectVariant) TableName() string { return "authority_subject_variants" }

// ResourceSubject links a resource to a canonical subject.
type ResourceSubject struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ResourceID uuid.UUID `gorm:"type:uuid;not null;index:idx_resource_subject,unique" json:"resource_id"`
	SubjectID  uuid.UUID `gorm:"type:uuid;not null;index:idx_resource_subject,unique" json:"subject_id"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ResourceSubject) TableName() string { return "resource_subjects" }
