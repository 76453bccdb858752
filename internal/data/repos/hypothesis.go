package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

type HypothesisRepo interface {
	Create(dbc dbctx.Context, h *types.DiscoveryHypothesis) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.DiscoveryHypothesis, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	ListByAnchor(dbc dbctx.Context, aResourceID uuid.UUID, limit int) ([]*types.DiscoveryHypothesis, error)
	MarkStaleForResource(dbc dbctx.Context, resourceID uuid.UUID) error
}

type hypothesisRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHypothesisRepo(db *gorm.DB, baseLog *logger.Logger) HypothesisRepo {
	return &hypothesisRepo{db: db, log: baseLog.With("repo", "HypothesisRepo")}
}

func (r *hypothesisRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *hypothesisRepo) Create(dbc dbctx.Context, h *types.DiscoveryHypothesis) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return r.handle(dbc).WithContext(dbc.Ctx).Create(h).Error
}

func (r *hypothesisRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.DiscoveryHypothesis, error) {
	var h types.DiscoveryHypothesis
	if err := r.handle(dbc).WithContext(dbc.Ctx).First(&h, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *hypothesisRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.DiscoveryHypothesis{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *hypothesisRepo) ListByAnchor(dbc dbctx.Context, aResourceID uuid.UUID, limit int) ([]*types.DiscoveryHypothesis, error) {
	var rows []*types.DiscoveryHypothesis
	q := r.handle(dbc).WithContext(dbc.Ctx).
		Where("a_resource_id = ?", aResourceID).
		Order("plausibility_score DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkStaleForResource flags hypotheses that reference a deleted resource.
// Weak references: no cascade.
func (r *hypothesisRepo) MarkStaleForResource(dbc dbctx.Context, resourceID uuid.UUID) error {
	return r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.DiscoveryHypothesis{}).
		Where("a_resource_id = ? OR c_resource_id = ? OR CAST(b_resource_ids AS TEXT) LIKE ?",
			resourceID, resourceID, "%"+resourceID.String()+"%").
		Updates(map[string]interface{}{
			"stale":      true,
			"updated_at": time.Now().UTC(),
		}).Error
}
