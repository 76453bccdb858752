package services

import (
	_ "embed"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/neoalexandria/backend/internal/ai"
	"github.com/neoalexandria/backend/internal/data/repos"
	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

//go:embed config/classifier_codes.yaml
var classifierCodesYAML []byte

type codePattern struct {
	Keyword string  `yaml:"keyword"`
	Weight  float64 `yaml:"weight"`
}

type classifierCode struct {
	Code     string        `yaml:"code"`
	Name     string        `yaml:"name"`
	Keywords []codePattern `yaml:"keywords"`
}

var (
	codesOnce sync.Once
	codeTable []classifierCode
)

func classifierCodes() []classifierCode {
	codesOnce.Do(func() {
		_ = yaml.Unmarshal(classifierCodesYAML, &codeTable)
	})
	return codeTable
}

// Confidence bands for taxonomy assignments.
const (
	classifyDropBelow   = 0.3
	classifyReviewBelow = 0.7
	ruleScoreThreshold  = 1.0
)

// ClassifyService assigns classification codes and taxonomy nodes. The
// rule-based code table always runs; the ML path runs when taxonomy nodes
// exist and the model backend is up.
type ClassifyService struct {
	log      *logger.Logger
	ai       *ai.Service
	taxonomy repos.TaxonomyRepo
}

func NewClassifyService(log *logger.Logger, aiSvc *ai.Service, taxonomy repos.TaxonomyRepo) *ClassifyService {
	return &ClassifyService{
		log:      log.With("service", "ClassifyService"),
		ai:       aiSvc,
		taxonomy: taxonomy,
	}
}

// RuleClassify scores every code against title+subjects+summary and returns
// the top code when its score clears the threshold, else ("", 0).
func RuleClassify(title string, subjects []string, summary string) (string, float64) {
	text := strings.ToLower(title + " " + strings.Join(subjects, " ") + " " + summary)
	bestCode := ""
	bestScore := 0.0
	for _, c := range classifierCodes() {
		score := 0.0
		for _, p := range c.Keywords {
			if strings.Contains(text, p.Keyword) {
				score += p.Weight
			}
		}
		if score > bestScore {
			bestCode, bestScore = c.Code, score
		}
	}
	if bestScore <= ruleScoreThreshold {
		return "", 0
	}
	return bestCode, bestScore
}

// Assign runs both classification paths for a resource and persists
// assignments. Prior assignments are replaced wholesale: the rule path writes
// rows with a nil node id, which never hit the upsert's conflict target, so a
// re-ingest would otherwise accumulate duplicates. Returns the classification
// code chosen for the resource row (rule-based result; empty when below
// threshold).
func (s *ClassifyService) Assign(dbc dbctx.Context, res *types.Resource) (string, error) {
	if err := s.taxonomy.DeleteAssignmentsByResource(dbc, res.ID); err != nil {
		return "", err
	}
	code, score := RuleClassify(res.Title, res.SubjectList(), res.Summary)
	if code != "" {
		conf := normalizeRuleScore(score)
		a := &types.ResourceTaxonomyAssignment{
			ResourceID:  res.ID,
			Code:        code,
			Confidence:  conf,
			NeedsReview: conf < classifyReviewBelow,
		}
		if err := s.taxonomy.UpsertAssignment(dbc, a); err != nil {
			return "", err
		}
	}

	if err := s.assignTaxonomy(dbc, res); err != nil {
		// ML path failure never blocks ingestion.
		s.log.Warn("taxonomy classification skipped", "resource_id", res.ID, "error", err)
	}
	return code, nil
}

// assignTaxonomy runs the zero-shot path over the taxonomy tree, keeping
// assignments ≥0.3 and flagging the 0.3–0.7 band for review.
func (s *ClassifyService) assignTaxonomy(dbc dbctx.Context, res *types.Resource) error {
	nodes, err := s.taxonomy.ListNodes(dbc)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return nil
	}

	labels := make([]string, len(nodes))
	byName := make(map[string]uuid.UUID, len(nodes))
	for i, n := range nodes {
		labels[i] = n.Name
		byName[n.Name] = n.ID
	}

	scores, degraded := s.ai.Classify(dbc.Ctx, res.CompositeText(), labels)
	if degraded {
		return nil
	}

	for name, conf := range scores {
		if conf < classifyDropBelow {
			continue
		}
		nodeID, ok := byName[name]
		if !ok {
			continue
		}
		id := nodeID
		a := &types.ResourceTaxonomyAssignment{
			ResourceID:  res.ID,
			NodeID:      &id,
			Confidence:  conf,
			NeedsReview: conf < classifyReviewBelow,
		}
		if err := s.taxonomy.UpsertAssignment(dbc, a); err != nil {
			return err
		}
	}
	return nil
}

// HasFlaggedAssignment reports whether any assignment for the resource needs
// review, feeding the quality scorer's needs_review decision.
func (s *ClassifyService) HasFlaggedAssignment(dbc dbctx.Context, resourceID uuid.UUID) (bool, error) {
	rows, err := s.taxonomy.AssignmentsByResource(dbc, resourceID)
	if err != nil {
		return false, err
	}
	for _, a := range rows {
		if a.NeedsReview {
			return true, nil
		}
	}
	return false, nil
}

// BestConfidence returns the highest assignment confidence for a resource,
// zero when unclassified.
func (s *ClassifyService) BestConfidence(dbc dbctx.Context, resourceID uuid.UUID) (float64, error) {
	rows, err := s.taxonomy.AssignmentsByResource(dbc, resourceID)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Confidence, nil
}

// normalizeRuleScore maps an unbounded keyword score into (0,1]. A score at
// the threshold lands near 0.5 and grows toward 1 as more patterns match.
func normalizeRuleScore(score float64) float64 {
	conf := score / (score + ruleScoreThreshold)
	if conf > 1 {
		conf = 1
	}
	return conf
}
