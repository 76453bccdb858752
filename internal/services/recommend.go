package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/neoalexandria/backend/internal/ai"
	"github.com/neoalexandria/backend/internal/clients/websearch"
	"github.com/neoalexandria/backend/internal/data/repos"
	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/pkg/urlnorm"
	"github.com/neoalexandria/backend/internal/pkg/vecmath"
	"github.com/neoalexandria/backend/internal/platform/envutil"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

const ReasonInsufficientLibrary = "insufficient_library"

type Recommendation struct {
	URL    string  `json:"url"`
	Title  string  `json:"title"`
	Score  float64 `json:"relevance_score"`
	Reason string  `json:"reason"`
}

type RecommendResult struct {
	Items   []Recommendation `json:"items"`
	Partial bool             `json:"partial,omitempty"`
	Reason  string           `json:"reason,omitempty"`
}

type RecommendOptions struct {
	ProfileSize          int
	KeywordCount         int
	CandidatesPerKeyword int
	Budget               time.Duration
}

func RecommendOptionsFromEnv() RecommendOptions {
	return RecommendOptions{
		ProfileSize:          envutil.Int("RECOMMENDATION_PROFILE_SIZE", 50),
		KeywordCount:         envutil.Int("RECOMMENDATION_KEYWORD_COUNT", 5),
		CandidatesPerKeyword: envutil.Int("RECOMMENDATION_CANDIDATES_PER_KEYWORD", 10),
		Budget:               envutil.Duration("SEARCH_TIMEOUT", 10*time.Second),
	}
}

type RecommendService struct {
	log       *logger.Logger
	ai        *ai.Service
	resources repos.ResourceRepo
	subjects  repos.SubjectRepo
	provider  websearch.Provider
	opts      RecommendOptions
}

func NewRecommendService(log *logger.Logger, aiSvc *ai.Service, r repos.ResourceRepo, s repos.SubjectRepo, provider websearch.Provider, opts RecommendOptions) *RecommendService {
	if opts.ProfileSize <= 0 {
		opts.ProfileSize = 50
	}
	if opts.KeywordCount <= 0 {
		opts.KeywordCount = 5
	}
	if opts.CandidatesPerKeyword <= 0 {
		opts.CandidatesPerKeyword = 10
	}
	if opts.Budget <= 0 {
		opts.Budget = 10 * time.Second
	}
	return &RecommendService{
		log:       log.With("service", "RecommendService"),
		ai:        aiSvc,
		resources: r,
		subjects:  s,
		provider:  provider,
		opts:      opts,
	}
}

// Recommend sources external candidates from seed keywords and ranks them by
// cosine against the library profile vector. Provider failures shrink the
// candidate pool rather than failing the request.
func (s *RecommendService) Recommend(dbc dbctx.Context, limit int) (*RecommendResult, error) {
	if limit <= 0 {
		limit = 10
	}

	profile, ok, err := s.profileVector(dbc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &RecommendResult{Items: []Recommendation{}, Reason: ReasonInsufficientLibrary}, nil
	}

	keywords, err := s.seedKeywords(dbc)
	if err != nil {
		return nil, err
	}
	if len(keywords) == 0 {
		return &RecommendResult{Items: []Recommendation{}, Reason: ReasonInsufficientLibrary}, nil
	}

	// All provider calls share one overall budget.
	ctx, cancel := context.WithTimeout(dbc.Ctx, s.opts.Budget)
	defer cancel()

	type candidate struct {
		websearch.Result
		keyword string
	}
	seen := map[string]struct{}{}
	var candidates []candidate
	partial := false
	for _, kw := range keywords {
		results, err := s.provider.Search(ctx, kw, s.opts.CandidatesPerKeyword)
		if err != nil {
			s.log.Warn("provider keyword skipped", "keyword", kw, "error", err)
			partial = true
			if ctx.Err() != nil {
				break
			}
			continue
		}
		for _, r := range results {
			canon := urlnorm.Canonical(r.URL)
			if canon == "" {
				continue
			}
			if _, dup := seen[canon]; dup {
				continue
			}
			seen[canon] = struct{}{}
			r.URL = canon
			candidates = append(candidates, candidate{Result: r, keyword: kw})
		}
	}

	items := make([]Recommendation, 0, len(candidates))
	for _, c := range candidates {
		// Never recommend what the library already holds.
		if _, err := s.resources.GetBySourceURL(dbc, c.URL); err == nil {
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		vec, degraded := s.ai.Embed(dbc.Ctx, c.Title+" "+c.Snippet)
		if degraded {
			partial = true
		}
		score := vecmath.Cosine(vec, profile)
		if score < 0 {
			score = 0
		}
		items = append(items, Recommendation{
			URL:    c.URL,
			Title:  c.Title,
			Score:  score,
			Reason: recommendReason(c.keyword, c.Snippet),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].URL < items[j].URL
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return &RecommendResult{Items: items, Partial: partial}, nil
}

// profileVector is the normalized mean of the top resources' embeddings.
// ok=false means the library is too small to profile.
func (s *RecommendService) profileVector(dbc dbctx.Context) ([]float32, bool, error) {
	top, err := s.resources.TopByQuality(dbc, s.opts.ProfileSize)
	if err != nil {
		return nil, false, err
	}
	var vecs [][]float32
	for _, r := range top {
		if vec := types.DecodeVector(r.Embedding); vec != nil {
			vecs = append(vecs, vec)
		}
	}
	if len(vecs) < 3 {
		return nil, false, nil
	}
	profile := vecmath.Mean(vecs)
	vecmath.NormalizeInPlace(profile)
	return profile, true, nil
}

// seedKeywords picks the top canonical subjects by usage weighted by the
// average quality of the resources carrying them.
func (s *RecommendService) seedKeywords(dbc dbctx.Context) ([]string, error) {
	// Over-fetch so the quality weighting can reorder.
	subjects, err := s.subjects.TopByUsage(dbc, s.opts.KeywordCount*4)
	if err != nil {
		return nil, err
	}
	type weighted struct {
		name  string
		score float64
	}
	var ranked []weighted
	for _, subj := range subjects {
		ids, err := s.subjects.ResourceIDsBySubject(dbc, subj.ID)
		if err != nil {
			return nil, err
		}
		avgQuality := 0.5
		if len(ids) > 0 {
			rows, err := s.resources.BulkGet(dbc, ids)
			if err != nil {
				return nil, err
			}
			if len(rows) > 0 {
				sum := 0.0
				for _, r := range rows {
					sum += r.QualityOverall
				}
				avgQuality = sum / float64(len(rows))
			}
		}
		ranked = append(ranked, weighted{
			name:  subj.CanonicalForm,
			score: float64(subj.UsageCount) * avgQuality,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].name < ranked[j].name
	})
	out := make([]string, 0, s.opts.KeywordCount)
	for _, w := range ranked {
		out = append(out, w.name)
		if len(out) >= s.opts.KeywordCount {
			break
		}
	}
	return out, nil
}

func recommendReason(keyword, snippet string) string {
	snippet = strings.TrimSpace(snippet)
	if len(snippet) > 120 {
		snippet = snippet[:120]
	}
	if snippet == "" {
		return fmt.Sprintf("matched library subject %q", keyword)
	}
	return fmt.Sprintf("matched library subject %q: %s", keyword, snippet)
}
