package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

type QualitySnapshotRepo interface {
	Append(dbc dbctx.Context, s *types.QualitySnapshot) error
	Latest(dbc dbctx.Context, resourceID uuid.UUID) (*types.QualitySnapshot, error)
	MeanOverallSince(dbc dbctx.Context, resourceID uuid.UUID, since time.Time) (mean float64, count int64, err error)
}

type qualitySnapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQualitySnapshotRepo(db *gorm.DB, baseLog *logger.Logger) QualitySnapshotRepo {
	return &qualitySnapshotRepo{db: db, log: baseLog.With("repo", "QualitySnapshotRepo")}
}

func (r *qualitySnapshotRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *qualitySnapshotRepo) Append(dbc dbctx.Context, s *types.QualitySnapshot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return r.handle(dbc).WithContext(dbc.Ctx).Create(s).Error
}

func (r *qualitySnapshotRepo) Latest(dbc dbctx.Context, resourceID uuid.UUID) (*types.QualitySnapshot, error) {
	var s types.QualitySnapshot
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("resource_id = ?", resourceID).
		Order("created_at DESC").
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *qualitySnapshotRepo) MeanOverallSince(dbc dbctx.Context, resourceID uuid.UUID, since time.Time) (float64, int64, error) {
	type agg struct {
		Mean  float64
		Count int64
	}
	var a agg
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.QualitySnapshot{}).
		Select("COALESCE(AVG(overall), 0) AS mean, COUNT(*) AS count").
		Where("resource_id = ? AND created_at >= ?", resourceID, since).
		Scan(&a).Error
	return a.Mean, a.Count, err
}
