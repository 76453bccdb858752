package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Ingestion lifecycle states. Transitions are owned by the ingest pipeline;
// failed is terminal until an explicit re-ingest resets the row.
const (
	IngestionPending    = "pending"
	IngestionExtracting = "extracting"
	IngestionEnriching  = "enriching"
	IngestionReady      = "ready"
	IngestionFailed     = "failed"
)

const (
	FormatHTML     = "html"
	FormatPDF      = "pdf"
	FormatMarkdown = "markdown"
	FormatText     = "text"
)

type Resource struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SourceURL string    `gorm:"column:source_url;not null;uniqueIndex" json:"source_url"`

	Title       string `gorm:"column:title" json:"title"`
	Description string `gorm:"column:description" json:"description"`
	ContentText string `gorm:"column:content_text;type:text" json:"content_text,omitempty"`
	Summary     string `gorm:"column:summary;type:text" json:"summary"`
	Format      string `gorm:"column:format" json:"format"`
	Language    string `gorm:"column:language;index" json:"language"`

	Subjects datatypes.JSON `gorm:"column:subjects;type:jsonb" json:"subjects"`
	Creators datatypes.JSON `gorm:"column:creators;type:jsonb" json:"creators"`

	// Dense vector as little-endian float32, unit-normalized on write.
	// JSON arrays exist only at the HTTP boundary.
	Embedding       []byte         `gorm:"column:embedding" json:"-"`
	SparseEmbedding datatypes.JSON `gorm:"column:sparse_embedding;type:jsonb" json:"sparse_embedding,omitempty"`

	ClassificationCode string `gorm:"column:classification_code;index" json:"classification_code,omitempty"`

	QualityAccuracy     float64 `gorm:"column:quality_accuracy;default:0" json:"quality_accuracy"`
	QualityCompleteness float64 `gorm:"column:quality_completeness;default:0" json:"quality_completeness"`
	QualityConsistency  float64 `gorm:"column:quality_consistency;default:0" json:"quality_consistency"`
	QualityTimeliness   float64 `gorm:"column:quality_timeliness;default:0" json:"quality_timeliness"`
	QualityRelevance    float64 `gorm:"column:quality_relevance;default:0" json:"quality_relevance"`
	QualityOverall      float64 `gorm:"column:quality_overall;default:0;index" json:"quality_overall"`
	NeedsReview         bool    `gorm:"column:needs_review;default:false" json:"needs_review"`
	ReviewReason        string  `gorm:"column:review_reason" json:"review_reason,omitempty"`

	IngestionStatus string `gorm:"column:ingestion_status;not null;default:'pending';index" json:"ingestion_status"`
	IngestionError  string `gorm:"column:ingestion_error" json:"ingestion_error,omitempty"`

	// Scholarly metadata, populated when detectable.
	DOI                  string  `gorm:"column:doi" json:"doi,omitempty"`
	ArxivID              string  `gorm:"column:arxiv_id" json:"arxiv_id,omitempty"`
	Journal              string  `gorm:"column:journal" json:"journal,omitempty"`
	PublicationYear      *int    `gorm:"column:publication_year" json:"publication_year,omitempty"`
	EquationCount        int     `gorm:"column:equation_count;default:0" json:"equation_count,omitempty"`
	TableCount           int     `gorm:"column:table_count;default:0" json:"table_count,omitempty"`
	MetadataCompleteness float64 `gorm:"column:metadata_completeness;default:0" json:"metadata_completeness,omitempty"`

	CreatedAt  time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	IngestedAt *time.Time `gorm:"column:ingested_at" json:"ingested_at,omitempty"`
}

func (Resource) TableName() string { return "resources" }

// SubjectList decodes the subjects JSON column. Always returns a non-nil
// slice.
func (r *Resource) SubjectList() []string {
	return decodeStrings(r.Subjects)
}

func (r *Resource) SetSubjects(subjects []string) {
	r.Subjects = encodeStrings(subjects)
}

// CreatorList decodes the creators JSON column preserving order.
func (r *Resource) CreatorList() []string {
	return decodeStrings(r.Creators)
}

func (r *Resource) SetCreators(creators []string) {
	r.Creators = encodeStrings(creators)
}

// CompositeText is the embedding input: title, description and subjects
// joined with a middle dot.
func (r *Resource) CompositeText() string {
	parts := []string{r.Title, r.Description}
	parts = append(parts, r.SubjectList()...)
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += " · "
		}
		out += p
	}
	return out
}

func decodeStrings(j datatypes.JSON) []string {
	if len(j) == 0 {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal(j, &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func encodeStrings(in []string) datatypes.JSON {
	if in == nil {
		in = []string{}
	}
	b, _ := json.Marshal(in)
	return datatypes.JSON(b)
}
