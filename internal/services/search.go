package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/neoalexandria/backend/internal/ai"
	"github.com/neoalexandria/backend/internal/data/repos"
	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/pkg/vecmath"
	"github.com/neoalexandria/backend/internal/platform/apierr"
	"github.com/neoalexandria/backend/internal/platform/envutil"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

const (
	searchBranchLimit = 200
	searchMaxLimit    = 100
	rerankTopN        = 100
	rerankSoftBudget  = 2 * time.Second
	rrfK              = 60.0
)

const (
	FusionLinear = "linear"
	FusionRRF    = "rrf"
)

type SearchFilters struct {
	Language       string   `json:"language,omitempty"`
	YearFrom       *int     `json:"year_from,omitempty"`
	YearTo         *int     `json:"year_to,omitempty"`
	Classification string   `json:"classification,omitempty"`
	SubjectsAny    []string `json:"subjects_any,omitempty"`
	SubjectsAll    []string `json:"subjects_all,omitempty"`
	QualityMin     *float64 `json:"quality_min,omitempty"`
	QualityMax     *float64 `json:"quality_max,omitempty"`
}

type SearchRequest struct {
	Text         string        `json:"text"`
	Filters      SearchFilters `json:"filters"`
	Limit        int           `json:"limit"`
	Offset       int           `json:"offset"`
	HybridWeight *float64      `json:"hybrid_weight,omitempty"`
	Fusion       string        `json:"fusion,omitempty"`
	Rerank       bool          `json:"rerank,omitempty"`
	Facets       bool          `json:"facets,omitempty"`
}

type BranchScores struct {
	Lexical  float64 `json:"lexical"`
	Semantic float64 `json:"semantic"`
}

type SearchItem struct {
	ID        uuid.UUID    `json:"id"`
	Score     float64      `json:"score"`
	PerBranch BranchScores `json:"per_branch"`
	Snippet   string       `json:"snippet,omitempty"`
	Title     string       `json:"title"`
	SourceURL string       `json:"source_url"`
	Quality   float64      `json:"quality_overall"`
}

type SearchFacets struct {
	Languages       map[string]int `json:"languages"`
	Classifications map[string]int `json:"classifications"`
	YearBuckets     map[string]int `json:"year_buckets"`
	TopSubjects     map[string]int `json:"top_subjects"`
}

type SearchResult struct {
	Items   []SearchItem  `json:"items"`
	Total   int           `json:"total"`
	Partial bool          `json:"partial,omitempty"`
	Facets  *SearchFacets `json:"facets,omitempty"`
}

// Reranker re-scores the head of a fused ranking. Implementations form a
// closed set selected by configuration; the zero default is identity.
type Reranker interface {
	Rerank(ctx context.Context, query string, items []SearchItem) ([]SearchItem, error)
}

type SearchService struct {
	log       *logger.Logger
	ai        *ai.Service
	resources repos.ResourceRepo
	reranker  Reranker

	defaultWeight float64
}

func NewSearchService(log *logger.Logger, aiSvc *ai.Service, resources repos.ResourceRepo, reranker Reranker) *SearchService {
	return &SearchService{
		log:           log.With("service", "SearchService"),
		ai:            aiSvc,
		resources:     resources,
		reranker:      reranker,
		defaultWeight: envutil.Float("DEFAULT_HYBRID_SEARCH_WEIGHT", 0.5),
	}
}

// Search runs the lexical and semantic branches in parallel, filters,
// normalizes per branch, fuses, optionally re-ranks, and pages. A failed
// semantic branch degrades to lexical-only with partial=true.
func (s *SearchService) Search(dbc dbctx.Context, req SearchRequest) (*SearchResult, error) {
	query := strings.TrimSpace(req.Text)
	if query == "" {
		return nil, apierr.Newf(apierr.KindValidation, "search text required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > searchMaxLimit {
		return nil, apierr.Newf(apierr.KindValidation, "limit exceeds %d", searchMaxLimit)
	}
	weight := s.defaultWeight
	if req.HybridWeight != nil {
		weight = *req.HybridWeight
		if weight < 0 || weight > 1 {
			return nil, apierr.Newf(apierr.KindValidation, "hybrid_weight must be in [0,1]")
		}
	}

	var (
		lexHits []repos.FTSHit
		semHits []repos.FTSHit
		partial bool
	)
	g, gctx := errgroup.WithContext(dbc.Ctx)
	g.Go(func() error {
		hits, err := s.resources.SearchFTS(dbctx.Context{Ctx: gctx, Tx: dbc.Tx}, query, searchBranchLimit)
		if err != nil {
			return fmt.Errorf("lexical branch: %w", err)
		}
		lexHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := s.semanticBranch(dbctx.Context{Ctx: gctx, Tx: dbc.Tx}, query)
		if err != nil {
			// Semantic failure is not fatal: return the best available
			// ranking from the lexical branch alone.
			s.log.Warn("semantic branch degraded", "error", err)
			partial = true
			return nil
		}
		semHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Candidate union, then structured filters.
	candidates, err := s.loadCandidates(dbc, lexHits, semHits)
	if err != nil {
		return nil, err
	}
	filtered := applyFilters(candidates, req.Filters)

	lexNorm := normalizeBranch(lexHits, filtered)
	semNorm := normalizeBranch(semHits, filtered)

	items := s.fuse(filtered, lexNorm, semNorm, lexHits, semHits, weight, req.Fusion)
	sortSearchItems(items, filtered)

	if req.Rerank && s.reranker != nil {
		items = s.rerank(dbc.Ctx, query, items)
	}

	for i := range items {
		if res, ok := filtered[items[i].ID]; ok {
			items[i].Snippet = matchSnippet(res, query)
		}
	}

	var facets *SearchFacets
	if req.Facets {
		facets = computeFacets(filtered)
	}

	total := len(items)
	start := req.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &SearchResult{
		Items:   items[start:end],
		Total:   total,
		Partial: partial,
		Facets:  facets,
	}, nil
}

// semanticBranch embeds the query and brute-force scans stored vectors.
func (s *SearchService) semanticBranch(dbc dbctx.Context, query string) ([]repos.FTSHit, error) {
	qvec, err := s.ai.EmbedQuery(dbc.Ctx, query)
	if err != nil {
		return nil, err
	}
	var hits []repos.FTSHit
	err = s.resources.EachWithEmbedding(dbc, 500, func(row repos.EmbeddingRow) error {
		cos := vecmath.Cosine(qvec, row.Vector)
		if cos <= 0 {
			return nil
		}
		hits = append(hits, repos.FTSHit{ID: row.ID, Rank: cos})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Rank != hits[j].Rank {
			return hits[i].Rank > hits[j].Rank
		}
		return hits[i].ID.String() < hits[j].ID.String()
	})
	if len(hits) > searchBranchLimit {
		hits = hits[:searchBranchLimit]
	}
	return hits, nil
}

func (s *SearchService) loadCandidates(dbc dbctx.Context, lex, sem []repos.FTSHit) (map[uuid.UUID]*types.Resource, error) {
	seen := map[uuid.UUID]struct{}{}
	var ids []uuid.UUID
	for _, h := range append(append([]repos.FTSHit{}, lex...), sem...) {
		if _, ok := seen[h.ID]; ok {
			continue
		}
		seen[h.ID] = struct{}{}
		ids = append(ids, h.ID)
	}
	rows, err := s.resources.BulkGet(dbc, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]*types.Resource, len(rows))
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

func applyFilters(candidates map[uuid.UUID]*types.Resource, f SearchFilters) map[uuid.UUID]*types.Resource {
	out := make(map[uuid.UUID]*types.Resource, len(candidates))
	for id, r := range candidates {
		if f.Language != "" && !strings.EqualFold(r.Language, f.Language) {
			continue
		}
		if f.Classification != "" && r.ClassificationCode != f.Classification {
			continue
		}
		if f.YearFrom != nil && (r.PublicationYear == nil || *r.PublicationYear < *f.YearFrom) {
			continue
		}
		if f.YearTo != nil && (r.PublicationYear == nil || *r.PublicationYear > *f.YearTo) {
			continue
		}
		if f.QualityMin != nil && r.QualityOverall < *f.QualityMin {
			continue
		}
		if f.QualityMax != nil && r.QualityOverall > *f.QualityMax {
			continue
		}
		if len(f.SubjectsAny) > 0 && !subjectsMatch(r.SubjectList(), f.SubjectsAny, false) {
			continue
		}
		if len(f.SubjectsAll) > 0 && !subjectsMatch(r.SubjectList(), f.SubjectsAll, true) {
			continue
		}
		out[id] = r
	}
	return out
}

func subjectsMatch(have, want []string, all bool) bool {
	set := make(map[string]struct{}, len(have))
	for _, s := range have {
		set[strings.ToLower(s)] = struct{}{}
	}
	matched := 0
	for _, w := range want {
		if _, ok := set[strings.ToLower(w)]; ok {
			matched++
		}
	}
	if all {
		return matched == len(want)
	}
	return matched > 0
}

// normalizeBranch min-max scales one branch's scores to [0,1] over the
// post-filter candidate set. The max maps to 1 and the min to 0 unless the
// branch is empty or flat.
func normalizeBranch(hits []repos.FTSHit, filtered map[uuid.UUID]*types.Resource) map[uuid.UUID]float64 {
	kept := make([]repos.FTSHit, 0, len(hits))
	for _, h := range hits {
		if _, ok := filtered[h.ID]; ok {
			kept = append(kept, h)
		}
	}
	out := make(map[uuid.UUID]float64, len(kept))
	if len(kept) == 0 {
		return out
	}
	raw := make([]float64, len(kept))
	for i, h := range kept {
		raw[i] = h.Rank
	}
	scaled := vecmath.MinMax(raw)
	for i, h := range kept {
		out[h.ID] = scaled[i]
	}
	return out
}

func (s *SearchService) fuse(filtered map[uuid.UUID]*types.Resource, lexNorm, semNorm map[uuid.UUID]float64, lexHits, semHits []repos.FTSHit, weight float64, fusion string) []SearchItem {
	items := make([]SearchItem, 0, len(filtered))
	switch fusion {
	case FusionRRF:
		lexRank := rankOf(lexHits, filtered)
		semRank := rankOf(semHits, filtered)
		for id, res := range filtered {
			score := 0.0
			if r, ok := lexRank[id]; ok {
				score += 1 / (rrfK + float64(r))
			}
			if r, ok := semRank[id]; ok {
				score += 1 / (rrfK + float64(r))
			}
			items = append(items, SearchItem{
				ID:        id,
				Score:     score,
				PerBranch: BranchScores{Lexical: lexNorm[id], Semantic: semNorm[id]},
				Title:     res.Title,
				SourceURL: res.SourceURL,
				Quality:   res.QualityOverall,
			})
		}
	default:
		for id, res := range filtered {
			lex := lexNorm[id]
			sem := semNorm[id]
			items = append(items, SearchItem{
				ID:        id,
				Score:     (1-weight)*lex + weight*sem,
				PerBranch: BranchScores{Lexical: lex, Semantic: sem},
				Title:     res.Title,
				SourceURL: res.SourceURL,
				Quality:   res.QualityOverall,
			})
		}
	}
	return items
}

func rankOf(hits []repos.FTSHit, filtered map[uuid.UUID]*types.Resource) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(hits))
	rank := 0
	for _, h := range hits {
		if _, ok := filtered[h.ID]; !ok {
			continue
		}
		rank++
		out[h.ID] = rank
	}
	return out
}

// sortSearchItems orders by fused score, then quality, then newest
// ingested_at, then id.
func sortSearchItems(items []SearchItem, resources map[uuid.UUID]*types.Resource) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Quality != b.Quality {
			return a.Quality > b.Quality
		}
		ra, rb := resources[a.ID], resources[b.ID]
		if ra != nil && rb != nil {
			at, bt := ingestTime(ra), ingestTime(rb)
			if !at.Equal(bt) {
				return at.After(bt)
			}
		}
		return a.ID.String() < b.ID.String()
	})
}

func ingestTime(r *types.Resource) time.Time {
	if r.IngestedAt != nil {
		return *r.IngestedAt
	}
	return time.Time{}
}

// rerank re-scores the top N under a soft budget; on timeout or error the
// fused ranking stands.
func (s *SearchService) rerank(ctx context.Context, query string, items []SearchItem) []SearchItem {
	n := len(items)
	if n > rerankTopN {
		n = rerankTopN
	}
	if n == 0 {
		return items
	}
	rctx, cancel := context.WithTimeout(ctx, rerankSoftBudget)
	defer cancel()

	head, err := s.reranker.Rerank(rctx, query, items[:n])
	if err != nil {
		s.log.Warn("reranker unavailable; keeping fused order", "error", err)
		return items
	}
	return append(head, items[n:]...)
}

func matchSnippet(res *types.Resource, query string) string {
	const window = 80
	body := res.ContentText
	if body == "" {
		body = res.Summary
	}
	if body == "" {
		return ""
	}
	lower := strings.ToLower(body)
	for _, term := range strings.Fields(strings.ToLower(query)) {
		idx := strings.Index(lower, term)
		if idx < 0 {
			continue
		}
		lo := idx - window/2
		if lo < 0 {
			lo = 0
		}
		hi := idx + len(term) + window/2
		if hi > len(body) {
			hi = len(body)
		}
		return strings.TrimSpace(body[lo:hi])
	}
	if len(body) > window {
		return strings.TrimSpace(body[:window])
	}
	return strings.TrimSpace(body)
}

func computeFacets(filtered map[uuid.UUID]*types.Resource) *SearchFacets {
	f := &SearchFacets{
		Languages:       map[string]int{},
		Classifications: map[string]int{},
		YearBuckets:     map[string]int{},
		TopSubjects:     map[string]int{},
	}
	for _, r := range filtered {
		if r.Language != "" {
			f.Languages[r.Language]++
		}
		if r.ClassificationCode != "" {
			f.Classifications[r.ClassificationCode]++
		}
		if r.PublicationYear != nil {
			decade := (*r.PublicationYear / 10) * 10
			f.YearBuckets[fmt.Sprintf("%ds", decade)]++
		}
		for _, subj := range r.SubjectList() {
			f.TopSubjects[subj]++
		}
	}
	// Keep only the ten most common subjects.
	if len(f.TopSubjects) > 10 {
		type kv struct {
			k string
			v int
		}
		all := make([]kv, 0, len(f.TopSubjects))
		for k, v := range f.TopSubjects {
			all = append(all, kv{k, v})
		}
		sort.Slice(all, func(i, j int) bool {
			if all[i].v != all[j].v {
				return all[i].v > all[j].v
			}
			return all[i].k < all[j].k
		})
		top := map[string]int{}
		for _, e := range all[:10] {
			top[e.k] = e.v
		}
		f.TopSubjects = top
	}
	return f
}
