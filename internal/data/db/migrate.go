package db

import (
	"gorm.io/gorm"

	types "github.com/neoalexandria/backend/internal/domain"
)

func (s *PostgresService) AutoMigrateAll() error {
	if err := AutoMigrate(s.db); err != nil {
		return err
	}
	return s.ensureSearchIndex()
}

func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&types.Resource{},
		&types.AuthoritySubject{},
		&types.AuthoritySubjectVariant{},
		&types.ResourceSubject{},
		&types.TaxonomyNode{},
		&types.ResourceTaxonomyAssignment{},
		&types.Citation{},
		&types.DiscoveryHypothesis{},
		&types.GraphEdgeOverride{},
		&types.QualitySnapshot{},
		&types.JobRun{},
	)
}

// ensureSearchIndex builds the weighted tsvector expression index over
// title (A), description (B), summary (C) and content (D). Kept as a raw
// statement because GORM has no tsvector support.
func (s *PostgresService) ensureSearchIndex() error {
	return s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_resources_fts ON resources USING GIN (
			(
				setweight(to_tsvector('english', coalesce(title, '')), 'A') ||
				setweight(to_tsvector('english', coalesce(description, '')), 'B') ||
				setweight(to_tsvector('english', coalesce(summary, '')), 'C') ||
				setweight(to_tsvector('english', coalesce(content_text, '')), 'D')
			)
		)
	`).Error
}
