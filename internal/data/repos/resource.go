package repos

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

// FTSHit is one ranked full-text candidate.
type FTSHit struct {
	ID   uuid.UUID
	Rank float64
}

// EmbeddingRow is the lazy projection streamed to the semantic branch and the
// graph builder. The vector is decoded per row, never held for the whole set.
type EmbeddingRow struct {
	ID             uuid.UUID
	Vector         []float32
	QualityOverall float64
}

type ResourceRepo interface {
	Create(dbc dbctx.Context, r *types.Resource) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Resource, error)
	GetBySourceURL(dbc dbctx.Context, url string) (*types.Resource, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	BulkGet(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Resource, error)
	ListAll(dbc dbctx.Context) ([]*types.Resource, error)
	TopByQuality(dbc dbctx.Context, limit int) ([]*types.Resource, error)
	SearchFTS(dbc dbctx.Context, query string, limit int) ([]FTSHit, error)
	EachWithEmbedding(dbc dbctx.Context, batchSize int, fn func(row EmbeddingRow) error) error
}

type resourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResourceRepo(db *gorm.DB, baseLog *logger.Logger) ResourceRepo {
	return &resourceRepo{db: db, log: baseLog.With("repo", "ResourceRepo")}
}

func (r *resourceRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *resourceRepo) Create(dbc dbctx.Context, res *types.Resource) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	return r.handle(dbc).WithContext(dbc.Ctx).Create(res).Error
}

func (r *resourceRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Resource, error) {
	var res types.Resource
	if err := r.handle(dbc).WithContext(dbc.Ctx).First(&res, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *resourceRepo) GetBySourceURL(dbc dbctx.Context, url string) (*types.Resource, error) {
	var res types.Resource
	if err := r.handle(dbc).WithContext(dbc.Ctx).First(&res, "source_url = ?", url).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *resourceRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Resource{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *resourceRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	return r.handle(dbc).WithContext(dbc.Ctx).Delete(&types.Resource{}, "id = ?", id).Error
}

func (r *resourceRepo) BulkGet(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Resource, error) {
	if len(ids) == 0 {
		return []*types.Resource{}, nil
	}
	var rows []*types.Resource
	if err := r.handle(dbc).WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	// Preserve input order; missing ids are omitted.
	byID := make(map[uuid.UUID]*types.Resource, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	out := make([]*types.Resource, 0, len(rows))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *resourceRepo) ListAll(dbc dbctx.Context) ([]*types.Resource, error) {
	var rows []*types.Resource
	if err := r.handle(dbc).WithContext(dbc.Ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *resourceRepo) TopByQuality(dbc dbctx.Context, limit int) ([]*types.Resource, error) {
	var rows []*types.Resource
	q := r.handle(dbc).WithContext(dbc.Ctx).
		Where("ingestion_status = ?", types.IngestionReady).
		Order("quality_overall DESC, ingested_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

const ftsExpr = `
	setweight(to_tsvector('english', coalesce(title, '')), 'A') ||
	setweight(to_tsvector('english', coalesce(description, '')), 'B') ||
	setweight(to_tsvector('english', coalesce(summary, '')), 'C') ||
	setweight(to_tsvector('english', coalesce(content_text, '')), 'D')`

// SearchFTS ranks resources lexically. On Postgres this is a weighted
// ts_rank_cd query; on any other dialect it degrades to deterministic
// substring matching so tests and embedded deployments still search.
func (r *resourceRepo) SearchFTS(dbc dbctx.Context, query string, limit int) ([]FTSHit, error) {
	h := r.handle(dbc)
	if h.Dialector.Name() == "postgres" {
		return r.searchPostgres(dbc, query, limit)
	}
	return r.searchFallback(dbc, query, limit)
}

func (r *resourceRepo) searchPostgres(dbc dbctx.Context, query string, limit int) ([]FTSHit, error) {
	type row struct {
		ID   uuid.UUID
		Rank float64
	}
	var rows []row
	err := r.handle(dbc).WithContext(dbc.Ctx).Raw(`
		SELECT id, ts_rank_cd(`+ftsExpr+`, plainto_tsquery('english', ?)) AS rank
		FROM resources
		WHERE (`+ftsExpr+`) @@ plainto_tsquery('english', ?)
		ORDER BY rank DESC
		LIMIT ?`, query, query, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]FTSHit, len(rows))
	for i, rr := range rows {
		out[i] = FTSHit{ID: rr.ID, Rank: rr.Rank}
	}
	return out, nil
}

// searchFallback scores by term occurrence with the same field weighting the
// FTS index uses: title 4, description 3, summary 2, content 1.
func (r *resourceRepo) searchFallback(dbc dbctx.Context, query string, limit int) ([]FTSHit, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return []FTSHit{}, nil
	}
	var rows []*types.Resource
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Select("id", "title", "description", "summary", "content_text").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	hits := make([]FTSHit, 0)
	for _, res := range rows {
		score := 0.0
		fields := []struct {
			text   string
			weight float64
		}{
			{res.Title, 4},
			{res.Description, 3},
			{res.Summary, 2},
			{res.ContentText, 1},
		}
		for _, f := range fields {
			lower := strings.ToLower(f.text)
			for _, term := range terms {
				score += f.weight * float64(strings.Count(lower, term))
			}
		}
		if score > 0 {
			hits = append(hits, FTSHit{ID: res.ID, Rank: score})
		}
	}
	sortHits(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func sortHits(hits []FTSHit) {
	// Rank desc, id asc for deterministic output.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0; j-- {
			a, b := hits[j-1], hits[j]
			if b.Rank > a.Rank || (b.Rank == a.Rank && b.ID.String() < a.ID.String()) {
				hits[j-1], hits[j] = b, a
			} else {
				break
			}
		}
	}
}

func (r *resourceRepo) EachWithEmbedding(dbc dbctx.Context, batchSize int, fn func(row EmbeddingRow) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	var batch []*types.Resource
	result := r.handle(dbc).WithContext(dbc.Ctx).
		Select("id", "embedding", "quality_overall").
		Where("embedding IS NOT NULL AND length(embedding) > 0").
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			for _, res := range batch {
				vec := types.DecodeVector(res.Embedding)
				if vec == nil {
					continue
				}
				if err := fn(EmbeddingRow{ID: res.ID, Vector: vec, QualityOverall: res.QualityOverall}); err != nil {
					return err
				}
			}
			return nil
		})
	return result.Error
}
