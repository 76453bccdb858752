package repos

import (
	"gorm.io/gorm"

	"github.com/neoalexandria/backend/internal/platform/logger"
)

// Set aggregates every repository over one DB handle.
type Set struct {
	Resources       ResourceRepo
	Subjects        SubjectRepo
	Taxonomy        TaxonomyRepo
	Citations       CitationRepo
	Hypotheses      HypothesisRepo
	Overrides       OverrideRepo
	QualitySnapshots QualitySnapshotRepo
	JobRuns         JobRunRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Resources:        NewResourceRepo(db, baseLog),
		Subjects:         NewSubjectRepo(db, baseLog),
		Taxonomy:         NewTaxonomyRepo(db, baseLog),
		Citations:        NewCitationRepo(db, baseLog),
		Hypotheses:       NewHypothesisRepo(db, baseLog),
		Overrides:        NewOverrideRepo(db, baseLog),
		QualitySnapshots: NewQualitySnapshotRepo(db, baseLog),
		JobRuns:          NewJobRunRepo(db, baseLog),
	}
}
