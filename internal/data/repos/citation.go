package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

type CitationRepo interface {
	CreateBatch(dbc dbctx.Context, citations []*types.Citation) error
	ListBySource(dbc dbctx.Context, sourceID uuid.UUID) ([]*types.Citation, error)
	ListByTarget(dbc dbctx.Context, targetID uuid.UUID) ([]*types.Citation, error)
	ListUnresolved(dbc dbctx.Context, limit int) ([]*types.Citation, error)
	ListResolved(dbc dbctx.Context) ([]*types.Citation, error)
	Resolve(dbc dbctx.Context, id uuid.UUID, targetResourceID uuid.UUID) error
	UpdateImportance(dbc dbctx.Context, id uuid.UUID, score float64) error
	CountInbound(dbc dbctx.Context, resourceID uuid.UUID) (int64, error)
	DeleteBySource(dbc dbctx.Context, sourceID uuid.UUID) error
	ClearTarget(dbc dbctx.Context, targetResourceID uuid.UUID) error
}

type citationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCitationRepo(db *gorm.DB, baseLog *logger.Logger) CitationRepo {
	return &citationRepo{db: db, log: baseLog.With("repo", "CitationRepo")}
}

func (r *citationRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *citationRepo) CreateBatch(dbc dbctx.Context, citations []*types.Citation) error {
	if len(citations) == 0 {
		return nil
	}
	for _, c := range citations {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
	}
	// (source, target_url, position) is unique; re-extraction is a no-op.
	return r.handle(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(citations, 100).Error
}

func (r *citationRepo) ListBySource(dbc dbctx.Context, sourceID uuid.UUID) ([]*types.Citation, error) {
	var rows []*types.Citation
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("source_resource_id = ?", sourceID).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *citationRepo) ListByTarget(dbc dbctx.Context, targetID uuid.UUID) ([]*types.Citation, error) {
	var rows []*types.Citation
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("target_resource_id = ?", targetID).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *citationRepo) ListUnresolved(dbc dbctx.Context, limit int) ([]*types.Citation, error) {
	var rows []*types.Citation
	q := r.handle(dbc).WithContext(dbc.Ctx).Where("target_resource_id IS NULL")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *citationRepo) ListResolved(dbc dbctx.Context) ([]*types.Citation, error) {
	var rows []*types.Citation
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("target_resource_id IS NOT NULL").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *citationRepo) Resolve(dbc dbctx.Context, id uuid.UUID, targetResourceID uuid.UUID) error {
	return r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Citation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"target_resource_id": targetResourceID,
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (r *citationRepo) UpdateImportance(dbc dbctx.Context, id uuid.UUID, score float64) error {
	return r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Citation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"importance_score": score,
			"updated_at":       time.Now().UTC(),
		}).Error
}

func (r *citationRepo) CountInbound(dbc dbctx.Context, resourceID uuid.UUID) (int64, error) {
	var n int64
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Citation{}).
		Where("target_resource_id = ?", resourceID).
		Count(&n).Error
	return n, err
}

func (r *citationRepo) DeleteBySource(dbc dbctx.Context, sourceID uuid.UUID) error {
	return r.handle(dbc).WithContext(dbc.Ctx).
		Delete(&types.Citation{}, "source_resource_id = ?", sourceID).Error
}

// ClearTarget unresolves citations pointing at a deleted resource so the
// resolution batch can re-match them later.
func (r *citationRepo) ClearTarget(dbc dbctx.Context, targetResourceID uuid.UUID) error {
	return r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Citation{}).
		Where("target_resource_id = ?", targetResourceID).
		Updates(map[string]interface{}{
			"target_resource_id": nil,
			"updated_at":         time.Now().UTC(),
		}).Error
}
