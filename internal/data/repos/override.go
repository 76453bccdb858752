package repos

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

type OverrideRepo interface {
	// MultiplyDelta folds factor into the stored delta for one edge,
	// creating the override row on first touch.
	MultiplyDelta(dbc dbctx.Context, sourceID, targetID uuid.UUID, edgeType string, factor float64) error
	Get(dbc dbctx.Context, sourceID, targetID uuid.UUID, edgeType string) (*types.GraphEdgeOverride, error)
	All(dbc dbctx.Context) ([]*types.GraphEdgeOverride, error)
}

type overrideRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOverrideRepo(db *gorm.DB, baseLog *logger.Logger) OverrideRepo {
	return &overrideRepo{db: db, log: baseLog.With("repo", "OverrideRepo")}
}

func (r *overrideRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *overrideRepo) MultiplyDelta(dbc dbctx.Context, sourceID, targetID uuid.UUID, edgeType string, factor float64) error {
	existing, err := r.Get(dbc, sourceID, targetID, edgeType)
	switch {
	case err == nil:
		return r.handle(dbc).WithContext(dbc.Ctx).
			Model(&types.GraphEdgeOverride{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"delta":      existing.Delta * factor,
				"updated_at": time.Now().UTC(),
			}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.handle(dbc).WithContext(dbc.Ctx).Create(&types.GraphEdgeOverride{
			ID:       uuid.New(),
			SourceID: sourceID,
			TargetID: targetID,
			EdgeType: edgeType,
			Delta:    factor,
		}).Error
	default:
		return err
	}
}

func (r *overrideRepo) Get(dbc dbctx.Context, sourceID, targetID uuid.UUID, edgeType string) (*types.GraphEdgeOverride, error) {
	var o types.GraphEdgeOverride
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		First(&o, "source_id = ? AND target_id = ? AND edge_type = ?", sourceID, targetID, edgeType).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *overrideRepo) All(dbc dbctx.Context) ([]*types.GraphEdgeOverride, error) {
	var rows []*types.GraphEdgeOverride
	if err := r.handle(dbc).WithContext(dbc.Ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
