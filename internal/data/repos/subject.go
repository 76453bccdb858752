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

type SubjectRepo interface {
	Create(dbc dbctx.Context, s *types.AuthoritySubject) error
	GetByCanonical(dbc dbctx.Context, canonical string) (*types.AuthoritySubject, error)
	GetByVariant(dbc dbctx.Context, variant string) (*types.AuthoritySubject, error)
	AddVariant(dbc dbctx.Context, subjectID uuid.UUID, variant string) error
	IncrementUsage(dbc dbctx.Context, subjectID uuid.UUID, delta int) error
	TopByUsage(dbc dbctx.Context, limit int) ([]*types.AuthoritySubject, error)
	LinkResource(dbc dbctx.Context, resourceID, subjectID uuid.UUID) error
	UnlinkResource(dbc dbctx.Context, resourceID uuid.UUID) error
	ResourceIDsBySubject(dbc dbctx.Context, subjectID uuid.UUID) ([]uuid.UUID, error)
}

type subjectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubjectRepo(db *gorm.DB, baseLog *logger.Logger) SubjectRepo {
	return &subjectRepo{db: db, log: baseLog.With("repo", "SubjectRepo")}
}

func (r *subjectRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *subjectRepo) Create(dbc dbctx.Context, s *types.AuthoritySubject) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return r.handle(dbc).WithContext(dbc.Ctx).Create(s).Error
}

func (r *subjectRepo) GetByCanonical(dbc dbctx.Context, canonical string) (*types.AuthoritySubject, error) {
	var s types.AuthoritySubject
	if err := r.handle(dbc).WithContext(dbc.Ctx).First(&s, "canonical_form = ?", canonical).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *subjectRepo) GetByVariant(dbc dbctx.Context, variant string) (*types.AuthoritySubject, error) {
	var v types.AuthoritySubjectVariant
	if err := r.handle(dbc).WithContext(dbc.Ctx).First(&v, "variant = ?", variant).Error; err != nil {
		return nil, err
	}
	var s types.AuthoritySubject
	if err := r.handle(dbc).WithContext(dbc.Ctx).First(&s, "id = ?", v.SubjectID).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *subjectRepo) AddVariant(dbc dbctx.Context, subjectID uuid.UUID, variant string) error {
	v := &types.AuthoritySubjectVariant{
		ID:        uuid.New(),
		SubjectID: subjectID,
		Variant:   variant,
	}
	return r.handle(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(v).Error
}

func (r *subjectRepo) IncrementUsage(dbc dbctx.Context, subjectID uuid.UUID, delta int) error {
	return r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.AuthoritySubject{}).
		Where("id = ?", subjectID).
		Updates(map[string]interface{}{
			"usage_count": gorm.Expr("usage_count + ?", delta),
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (r *subjectRepo) TopByUsage(dbc dbctx.Context, limit int) ([]*types.AuthoritySubject, error) {
	var rows []*types.AuthoritySubject
	q := r.handle(dbc).WithContext(dbc.Ctx).Order("usage_count DESC, canonical_form ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *subjectRepo) LinkResource(dbc dbctx.Context, resourceID, subjectID uuid.UUID) error {
	link := &types.ResourceSubject{
		ID:         uuid.New(),
		ResourceID: resourceID,
		SubjectID:  subjectID,
	}
	return r.handle(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(link).Error
}

func (r *subjectRepo) UnlinkResource(dbc dbctx.Context, resourceID uuid.UUID) error {
	return r.handle(dbc).WithContext(dbc.Ctx).
		Delete(&types.ResourceSubject{}, "resource_id = ?", resourceID).Error
}

func (r *subjectRepo) ResourceIDsBySubject(dbc dbctx.Context, subjectID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.ResourceSubject{}).
		Where("subject_id = ?", subjectID).
		Pluck("resource_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
