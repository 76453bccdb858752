package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

type TaxonomyRepo interface {
	CreateNode(dbc dbctx.Context, n *types.TaxonomyNode) error
	GetNode(dbc dbctx.Context, id uuid.UUID) (*types.TaxonomyNode, error)
	ListNodes(dbc dbctx.Context) ([]*types.TaxonomyNode, error)
	UpsertAssignment(dbc dbctx.Context, a *types.ResourceTaxonomyAssignment) error
	AssignmentsByResource(dbc dbctx.Context, resourceID uuid.UUID) ([]*types.ResourceTaxonomyAssignment, error)
	DeleteAssignmentsByResource(dbc dbctx.Context, resourceID uuid.UUID) error
}

type taxonomyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaxonomyRepo(db *gorm.DB, baseLog *logger.Logger) TaxonomyRepo {
	return &taxonomyRepo{db: db, log: baseLog.With("repo", "TaxonomyRepo")}
}

func (r *taxonomyRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *taxonomyRepo) CreateNode(dbc dbctx.Context, n *types.TaxonomyNode) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return r.handle(dbc).WithContext(dbc.Ctx).Create(n).Error
}

func (r *taxonomyRepo) GetNode(dbc dbctx.Context, id uuid.UUID) (*types.TaxonomyNode, error) {
	var n types.TaxonomyNode
	if err := r.handle(dbc).WithContext(dbc.Ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *taxonomyRepo) ListNodes(dbc dbctx.Context) ([]*types.TaxonomyNode, error) {
	var rows []*types.TaxonomyNode
	if err := r.handle(dbc).WithContext(dbc.Ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *taxonomyRepo) UpsertAssignment(dbc dbctx.Context, a *types.ResourceTaxonomyAssignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return r.handle(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "resource_id"}, {Name: "node_id"}, {Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"confidence", "needs_review"}),
		}).
		Create(a).Error
}

func (r *taxonomyRepo) AssignmentsByResource(dbc dbctx.Context, resourceID uuid.UUID) ([]*types.ResourceTaxonomyAssignment, error) {
	var rows []*types.ResourceTaxonomyAssignment
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("resource_id = ?", resourceID).
		Order("confidence DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *taxonomyRepo) DeleteAssignmentsByResource(dbc dbctx.Context, resourceID uuid.UUID) error {
	return r.handle(dbc).WithContext(dbc.Ctx).
		Delete(&types.ResourceTaxonomyAssignment{}, "resource_id = ?", resourceID).Error
}
