// Package pipeline holds the background job handlers. Each handler owns one
// job type and reports through the runtime context; the worker pool decides
// retry versus dead-letter from the returned error kind.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neoalexandria/backend/internal/ai"
	"github.com/neoalexandria/backend/internal/archive"
	"github.com/neoalexandria/backend/internal/data/repos"
	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/events"
	"github.com/neoalexandria/backend/internal/extract"
	"github.com/neoalexandria/backend/internal/jobs/runtime"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/pkg/vecmath"
	"github.com/neoalexandria/backend/internal/platform/apierr"
	"github.com/neoalexandria/backend/internal/platform/logger"
	"github.com/neoalexandria/backend/internal/services"
)

// Zero-shot subject gates for the seeding pass.
const (
	subjectScoreMin = 0.5
	subjectSeedMax  = 5
)

// Ingest runs the full enrichment pipeline for one submitted resource.
type Ingest struct {
	log       *logger.Logger
	set       repos.Set
	extractor *extract.Extractor
	archive   *archive.Store
	ai        *ai.Service
	authority *services.AuthorityService
	classify  *services.ClassifyService
	citations *services.CitationService
	quality   *services.QualityService
}

func NewIngest(
	log *logger.Logger,
	set repos.Set,
	extractor *extract.Extractor,
	arch *archive.Store,
	aiSvc *ai.Service,
	authority *services.AuthorityService,
	classify *services.ClassifyService,
	citations *services.CitationService,
	quality *services.QualityService,
) *Ingest {
	return &Ingest{
		log:       log.With("pipeline", "ingest_resource"),
		set:       set,
		extractor: extractor,
		archive:   arch,
		ai:        aiSvc,
		authority: authority,
		classify:  classify,
		citations: citations,
		quality:   quality,
	}
}

func (p *Ingest) Type() string { return types.JobIngestResource }

func (p *Ingest) Run(rc *runtime.Context) error {
	resourceID, ok := rc.PayloadUUID("resource_id")
	if !ok {
		return apierr.Newf(apierr.KindValidation, "ingest payload missing resource_id")
	}
	dbc := dbctx.Context{Ctx: rc.Ctx}

	res, err := p.set.Resources.GetByID(dbc, resourceID)
	if err != nil {
		return apierr.Newf(apierr.KindValidation, "resource %s vanished before ingest", resourceID)
	}
	if res.IngestionStatus == types.IngestionReady {
		rc.Succeed("finalize", map[string]any{"resource_id": res.ID, "skipped": true})
		return nil
	}

	if err := p.run(rc, dbc, res); err != nil {
		p.handleFailure(rc, dbc, res, err)
		return err
	}
	return nil
}

func (p *Ingest) run(rc *runtime.Context, dbc dbctx.Context, res *types.Resource) error {
	rc.Progress("extract", 10, "fetching source")
	if err := p.set.Resources.UpdateFields(dbc, res.ID, map[string]interface{}{
		"ingestion_status": types.IngestionExtracting,
	}); err != nil {
		return err
	}

	fetched, err := p.extractor.Fetch(rc.Ctx, res.SourceURL)
	if err != nil {
		return err
	}
	if p.archive != nil {
		if _, err := p.archive.Put(res.ID, fetched.RawBytes); err != nil {
			// Archival is best effort; the extracted text survives in the row.
			p.log.Warn("raw payload archive failed", "resource_id", res.ID, "error", err)
		}
	}

	if res.Title == "" {
		res.Title = fetched.Title
	}
	if res.Title == "" {
		res.Title = res.SourceURL
	}
	if res.Description == "" {
		res.Description = fetched.Description
	}
	res.ContentText = fetched.Text
	res.Format = fetched.Format
	if res.Language == "" {
		res.Language = "en"
	}
	if err := p.set.Resources.UpdateFields(dbc, res.ID, map[string]interface{}{
		"title":            res.Title,
		"description":      res.Description,
		"content_text":     res.ContentText,
		"format":           res.Format,
		"language":         res.Language,
		"ingestion_status": types.IngestionEnriching,
	}); err != nil {
		return err
	}

	rc.Progress("enrich", 40, "summarizing and embedding")
	degraded, err := p.enrich(rc, dbc, res)
	if err != nil {
		return err
	}

	rc.Progress("citations", 70, "extracting citations")
	if _, err := p.citations.ExtractFromResource(dbc, res, fetched.RawBytes); err != nil {
		return err
	}

	rc.Progress("quality", 85, "scoring quality")
	score, err := p.quality.Score(dbc, res)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := p.set.Resources.UpdateFields(dbc, res.ID, map[string]interface{}{
		"quality_accuracy":     score.Accuracy,
		"quality_completeness": score.Completeness,
		"quality_consistency":  score.Consistency,
		"quality_timeliness":   score.Timeliness,
		"quality_relevance":    score.Relevance,
		"quality_overall":      score.Overall,
		"needs_review":         score.NeedsReview,
		"review_reason":        score.ReviewReason,
		"ingestion_status":     types.IngestionReady,
		"ingestion_error":      "",
		"ingested_at":          now,
	}); err != nil {
		return err
	}

	rc.Emit(events.ResourceCreated, events.Payload{"resource_id": res.ID.String()})
	rc.Emit(events.ResourceReady, events.Payload{"resource_id": res.ID.String()})
	rc.Succeed("finalize", map[string]any{
		"resource_id":     res.ID,
		"quality_overall": score.Overall,
		"ai_degraded":     degraded,
	})
	return nil
}

// enrich runs summary, subjects and embedding. Summary and subject seeding
// are independent and run concurrently; the embedding needs the subjects and
// follows them. AI degradation never fails the run.
func (p *Ingest) enrich(rc *runtime.Context, dbc dbctx.Context, res *types.Resource) (bool, error) {
	var (
		summary          string
		rawSubjects      []string
		summaryDegraded  bool
		subjectsDegraded bool
	)

	g, gctx := errgroup.WithContext(rc.Ctx)
	g.Go(func() error {
		summary, summaryDegraded = p.ai.Summarize(gctx, res.Title, res.ContentText)
		return nil
	})
	g.Go(func() error {
		rawSubjects, subjectsDegraded = p.seedSubjects(gctx, res)
		return nil
	})
	if err := g.Wait(); err != nil {
		return false, err
	}
	degraded := summaryDegraded || subjectsDegraded
	res.Summary = summary

	subjects, err := p.authority.ResolveAll(dbc, res.ID, rawSubjects)
	if err != nil {
		return degraded, err
	}
	res.SetSubjects(subjects)

	vec, d := p.ai.Embed(rc.Ctx, res.CompositeText())
	if d {
		degraded = true
	}
	vecmath.NormalizeInPlace(vec)
	res.Embedding = types.EncodeVector(vec)

	if err := p.set.Resources.UpdateFields(dbc, res.ID, map[string]interface{}{
		"summary":   res.Summary,
		"subjects":  res.Subjects,
		"embedding": res.Embedding,
	}); err != nil {
		return degraded, err
	}

	code, err := p.classify.Assign(dbc, res)
	if err != nil {
		return degraded, err
	}
	if code != "" {
		res.ClassificationCode = code
		if err := p.set.Resources.UpdateFields(dbc, res.ID, map[string]interface{}{
			"classification_code": code,
		}); err != nil {
			return degraded, err
		}
	}
	return degraded, nil
}

// seedSubjects combines keyword hits over the curated vocabulary with a
// zero-shot pass, strongest first.
func (p *Ingest) seedSubjects(ctx context.Context, res *types.Resource) ([]string, bool) {
	labels := services.SeedSubjectLabels()
	if len(labels) == 0 {
		return nil, false
	}

	haystack := strings.ToLower(res.Title + " " + res.Description + " " + res.ContentText)
	type scored struct {
		label string
		score float64
	}
	var hits []scored
	for _, label := range labels {
		if strings.Contains(haystack, strings.ToLower(label)) {
			hits = append(hits, scored{label: label, score: 1.0})
		}
	}

	scores, degraded := p.ai.Classify(ctx, clipForClassify(res.ContentText, res.Title), labels)
	for label, score := range scores {
		if score < subjectScoreMin {
			continue
		}
		hits = append(hits, scored{label: label, score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].label < hits[j].label
	})
	seen := map[string]struct{}{}
	out := make([]string, 0, subjectSeedMax)
	for _, h := range hits {
		if _, dup := seen[h.label]; dup {
			continue
		}
		seen[h.label] = struct{}{}
		out = append(out, h.label)
		if len(out) >= subjectSeedMax {
			break
		}
	}
	return out, degraded
}

func clipForClassify(text, title string) string {
	if text == "" {
		return title
	}
	if len(text) > 4000 {
		return text[:4000]
	}
	return text
}

// handleFailure marks the resource failed once the run cannot continue:
// immediately for permanent errors, or when a transient error has burned the
// last attempt.
func (p *Ingest) handleFailure(rc *runtime.Context, dbc dbctx.Context, res *types.Resource, runErr error) {
	exhausted := rc.Job != nil && rc.Job.Attempts >= rc.Job.MaxAttempts
	if apierr.Transient(runErr) && !exhausted {
		return
	}
	if err := p.set.Resources.UpdateFields(dbc, res.ID, map[string]interface{}{
		"ingestion_status": types.IngestionFailed,
		"ingestion_error":  runErr.Error(),
	}); err != nil {
		p.log.Error("failed to mark resource failed", "resource_id", res.ID, "error", err)
	}
	rc.Emit(events.ResourceIngestFailed, events.Payload{
		"resource_id": res.ID.String(),
		"error":       runErr.Error(),
		"kind":        fmt.Sprint(apierr.KindOf(runErr)),
	})
}
