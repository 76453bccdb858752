package services

import (
	"context"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/neoalexandria/backend/internal/ai"
	"github.com/neoalexandria/backend/internal/data/repos"
	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/pkg/vecmath"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

// EmbedReranker re-scores a result head by fresh query-to-document cosine,
// blended half and half with the fused score. Items without a stored
// embedding keep their fused score.
type EmbedReranker struct {
	log       *logger.Logger
	ai        *ai.Service
	resources repos.ResourceRepo
}

func NewEmbedReranker(log *logger.Logger, aiSvc *ai.Service, resources repos.ResourceRepo) *EmbedReranker {
	return &EmbedReranker{
		log:       log.With("service", "EmbedReranker"),
		ai:        aiSvc,
		resources: resources,
	}
}

func (r *EmbedReranker) Rerank(ctx context.Context, query string, items []SearchItem) ([]SearchItem, error) {
	if len(items) == 0 {
		return items, nil
	}
	qvec, err := r.ai.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	rows, err := r.resources.BulkGet(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		return nil, err
	}
	vectors := make(map[uuid.UUID][]float32, len(rows))
	for _, res := range rows {
		if vec := types.DecodeVector(res.Embedding); vec != nil {
			vectors[res.ID] = vec
		}
	}

	out := make([]SearchItem, len(items))
	copy(out, items)
	for i := range out {
		vec, ok := vectors[out[i].ID]
		if !ok {
			continue
		}
		sim := math.Max(0, vecmath.Cosine(qvec, vec))
		out[i].Score = 0.5*out[i].Score + 0.5*sim
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
