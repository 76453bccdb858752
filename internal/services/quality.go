package services

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/neoalexandria/backend/internal/ai"
	"github.com/neoalexandria/backend/internal/data/repos"
	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/pkg/urlnorm"
	"github.com/neoalexandria/backend/internal/pkg/vecmath"
	"github.com/neoalexandria/backend/internal/platform/envutil"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

//go:embed config/domain_reputation.yaml
var domainReputationYAML []byte

type reputationTable struct {
	Default  float64            `yaml:"default"`
	Hosts    map[string]float64 `yaml:"hosts"`
	Suffixes map[string]float64 `yaml:"suffixes"`
}

var (
	reputationOnce sync.Once
	reputation     reputationTable
)

func domainReputation(host string) float64 {
	reputationOnce.Do(func() {
		reputation.Default = 0.3
		_ = yaml.Unmarshal(domainReputationYAML, &reputation)
	})
	host = strings.ToLower(host)
	if v, ok := reputation.Hosts[host]; ok {
		return v
	}
	for h, v := range reputation.Hosts {
		if strings.HasSuffix(host, "."+h) {
			return v
		}
	}
	// Longest suffix wins so ".ac.uk" beats ".uk".
	best, bestLen := reputation.Default, 0
	for suffix, v := range reputation.Suffixes {
		if strings.HasSuffix(host, suffix) && len(suffix) > bestLen {
			best, bestLen = v, len(suffix)
		}
	}
	return best
}

// Default dimension weights: accuracy, completeness, consistency,
// timeliness, relevance.
var defaultQualityWeights = []float64{0.30, 0.25, 0.20, 0.15, 0.10}

func qualityWeights() []float64 {
	w := envutil.Floats("QUALITY_WEIGHTS", defaultQualityWeights)
	if len(w) != 5 {
		return defaultQualityWeights
	}
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if sum <= 0 {
		return defaultQualityWeights
	}
	out := make([]float64, 5)
	for i, v := range w {
		out[i] = v / sum
	}
	return out
}

type QualityScore struct {
	Accuracy     float64
	Completeness float64
	Consistency  float64
	Timeliness   float64
	Relevance    float64
	Overall      float64
	NeedsReview  bool
	ReviewReason string
}

func (q QualityScore) dims() []float64 {
	return []float64{q.Accuracy, q.Completeness, q.Consistency, q.Timeliness, q.Relevance}
}

type QualityService struct {
	log       *logger.Logger
	ai        *ai.Service
	resources repos.ResourceRepo
	citations repos.CitationRepo
	snapshots repos.QualitySnapshotRepo
	classify  *ClassifyService
}

func NewQualityService(log *logger.Logger, aiSvc *ai.Service, r repos.ResourceRepo, c repos.CitationRepo, s repos.QualitySnapshotRepo, cls *ClassifyService) *QualityService {
	return &QualityService{
		log:       log.With("service", "QualityService"),
		ai:        aiSvc,
		resources: r,
		citations: c,
		snapshots: s,
		classify:  cls,
	}
}

// Score computes the five dimensions and the weighted overall for a
// resource, appends a snapshot, and returns the result. It does not write
// the resource row; the caller owns that transaction.
func (s *QualityService) Score(dbc dbctx.Context, res *types.Resource) (QualityScore, error) {
	var q QualityScore

	accuracy, err := s.accuracy(dbc, res)
	if err != nil {
		return q, err
	}
	q.Accuracy = accuracy
	q.Completeness = completeness(res)
	q.Consistency = s.consistency(dbc, res)
	q.Timeliness = timeliness(res, time.Now().UTC())

	relevance, err := s.relevance(dbc, res)
	if err != nil {
		return q, err
	}
	q.Relevance = relevance

	w := qualityWeights()
	dims := q.dims()
	for i := range dims {
		q.Overall += w[i] * dims[i]
	}

	if q.Overall < 0.5 {
		q.NeedsReview = true
		q.ReviewReason = "low_quality"
	}
	flagged, err := s.classify.HasFlaggedAssignment(dbc, res.ID)
	if err != nil {
		return q, err
	}
	if flagged {
		q.NeedsReview = true
		if q.ReviewReason == "" {
			q.ReviewReason = "classification_uncertain"
		}
	}

	if err := s.snapshots.Append(dbc, &types.QualitySnapshot{
		ResourceID:   res.ID,
		Accuracy:     q.Accuracy,
		Completeness: q.Completeness,
		Consistency:  q.Consistency,
		Timeliness:   q.Timeliness,
		Relevance:    q.Relevance,
		Overall:      q.Overall,
	}); err != nil {
		return q, err
	}
	return q, nil
}

func (s *QualityService) accuracy(dbc dbctx.Context, res *types.Resource) (float64, error) {
	cites, err := s.citations.ListBySource(dbc, res.ID)
	if err != nil {
		return 0, err
	}
	resolvedRatio := 0.0
	if len(cites) > 0 {
		resolved := 0
		for _, c := range cites {
			if c.TargetResourceID != nil {
				resolved++
			}
		}
		resolvedRatio = float64(resolved) / float64(len(cites))
	}

	rep := domainReputation(urlnorm.Host(res.SourceURL))

	scholarly := 0.0
	if res.DOI != "" || res.ArxivID != "" {
		scholarly = 1.0
	}

	return 0.4*resolvedRatio + 0.4*rep + 0.2*scholarly, nil
}

// Field importance weights for completeness.
var completenessFields = []struct {
	weight  float64
	present func(*types.Resource) bool
}{
	{1.0, func(r *types.Resource) bool { return strings.TrimSpace(r.Title) != "" }},
	{1.0, func(r *types.Resource) bool { return strings.TrimSpace(r.ContentText) != "" }},
	{0.5, func(r *types.Resource) bool { return strings.TrimSpace(r.Summary) != "" }},
	{0.4, func(r *types.Resource) bool { return len(r.SubjectList()) > 0 }},
	{0.3, func(r *types.Resource) bool { return len(r.CreatorList()) > 0 }},
	{0.2, func(r *types.Resource) bool { return r.PublicationYear != nil }},
	{0.1, func(r *types.Resource) bool { return r.DOI != "" }},
}

func completeness(res *types.Resource) float64 {
	total, got := 0.0, 0.0
	for _, f := range completenessFields {
		total += f.weight
		if f.present(res) {
			got += f.weight
		}
	}
	return got / total
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "in": {},
	"on": {}, "for": {}, "to": {}, "with": {}, "is": {}, "are": {}, "was": {},
	"by": {}, "at": {}, "from": {}, "as": {}, "it": {}, "its": {}, "this": {},
}

func contentTokens(text string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?()[]{}\"'")
		if tok == "" {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

// consistency blends title/content token overlap with the cosine of summary
// and content embeddings when both texts exist.
func (s *QualityService) consistency(dbc dbctx.Context, res *types.Resource) float64 {
	titleToks := contentTokens(res.Title)
	bodyToks := contentTokens(res.ContentText)
	overlap := jaccardSets(titleToks, bodyToks)

	if res.Summary == "" || res.ContentText == "" {
		return overlap
	}
	sumVec, _ := s.ai.Embed(dbc.Ctx, res.Summary)
	bodyVec, _ := s.ai.Embed(dbc.Ctx, clipForEmbedding(res.ContentText))
	cos := vecmath.Cosine(sumVec, bodyVec)
	if cos < 0 {
		cos = 0
	}
	return (overlap + cos) / 2
}

func jaccardSets(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func clipForEmbedding(s string) string {
	const max = 4000
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func timeliness(res *types.Resource, now time.Time) float64 {
	base := 0.5
	if res.PublicationYear != nil {
		age := float64(now.Year() - *res.PublicationYear)
		base = math.Max(0, 1-age/20)
	}
	// Recently ingested resources get a bonus decaying over 180 days.
	bonus := 0.0
	if res.IngestedAt != nil {
		days := now.Sub(*res.IngestedAt).Hours() / 24
		if days < 180 {
			bonus = 0.2 * (1 - days/180)
		}
	}
	return math.Min(1, base+bonus)
}

func (s *QualityService) relevance(dbc dbctx.Context, res *types.Resource) (float64, error) {
	conf, err := s.classify.BestConfidence(dbc, res.ID)
	if err != nil {
		return 0, err
	}
	inbound, err := s.citations.CountInbound(dbc, res.ID)
	if err != nil {
		return 0, err
	}
	// log(1+inbound) normalized against a 100-citation ceiling. A citation
	// count of zero still leaves a small floor so classification alone
	// registers.
	citeFactor := math.Log1p(float64(inbound)) / math.Log1p(100)
	if citeFactor > 1 {
		citeFactor = 1
	}
	return math.Min(1, conf*(0.25+0.75*citeFactor)), nil
}

// DetectOutliers computes per-dimension z-scores over the whole library and
// flags the top fraction (default 5%) by mean absolute z.
func (s *QualityService) DetectOutliers(dbc dbctx.Context, fraction float64) (int, error) {
	if fraction <= 0 {
		fraction = 0.05
	}
	all, err := s.resources.ListAll(dbc)
	if err != nil {
		return 0, err
	}
	scored := make([]*types.Resource, 0, len(all))
	for _, r := range all {
		if r.IngestionStatus == types.IngestionReady {
			scored = append(scored, r)
		}
	}
	if len(scored) < 10 {
		return 0, nil
	}

	dims := func(r *types.Resource) []float64 {
		return []float64{r.QualityAccuracy, r.QualityCompleteness, r.QualityConsistency, r.QualityTimeliness, r.QualityRelevance}
	}

	mean := make([]float64, 5)
	for _, r := range scored {
		for i, v := range dims(r) {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(len(scored))
	}
	std := make([]float64, 5)
	for _, r := range scored {
		for i, v := range dims(r) {
			d := v - mean[i]
			std[i] += d * d
		}
	}
	for i := range std {
		std[i] = math.Sqrt(std[i] / float64(len(scored)))
		if std[i] == 0 {
			std[i] = 1
		}
	}

	type anomaly struct {
		id    uuid.UUID
		score float64
	}
	anomalies := make([]anomaly, 0, len(scored))
	for _, r := range scored {
		total := 0.0
		for i, v := range dims(r) {
			total += math.Abs((v - mean[i]) / std[i])
		}
		anomalies = append(anomalies, anomaly{id: r.ID, score: total / 5})
	}
	sort.Slice(anomalies, func(i, j int) bool {
		if anomalies[i].score != anomalies[j].score {
			return anomalies[i].score > anomalies[j].score
		}
		return anomalies[i].id.String() < anomalies[j].id.String()
	})

	k := int(math.Ceil(fraction * float64(len(anomalies))))
	flagged := 0
	for _, a := range anomalies[:k] {
		err := s.resources.UpdateFields(dbc, a.id, map[string]interface{}{
			"needs_review":  true,
			"review_reason": fmt.Sprintf("quality_outlier (anomaly %.2f)", a.score),
		})
		if err != nil {
			return flagged, err
		}
		flagged++
	}
	return flagged, nil
}

// ScanDegradation flags resources whose latest overall sits ≥20% below
// their rolling 30-day mean.
func (s *QualityService) ScanDegradation(dbc dbctx.Context) (int, error) {
	all, err := s.resources.ListAll(dbc)
	if err != nil {
		return 0, err
	}
	since := time.Now().UTC().Add(-30 * 24 * time.Hour)
	flagged := 0
	for _, r := range all {
		if r.IngestionStatus != types.IngestionReady {
			continue
		}
		latest, err := s.snapshots.Latest(dbc, r.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return flagged, err
		}
		mean, count, err := s.snapshots.MeanOverallSince(dbc, r.ID, since)
		if err != nil {
			return flagged, err
		}
		if count < 2 || mean <= 0 {
			continue
		}
		if latest.Overall < 0.8*mean {
			err := s.resources.UpdateFields(dbc, r.ID, map[string]interface{}{
				"needs_review":  true,
				"review_reason": "quality_degraded",
			})
			if err != nil {
				return flagged, err
			}
			flagged++
		}
	}
	return flagged, nil
}
