package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/neoalexandria/backend/internal/domain"
)

func newQualityService(d *testDeps) *QualityService {
	classify := NewClassifyService(d.log, d.ai, d.set.Taxonomy)
	return NewQualityService(d.log, d.ai, d.set.Resources, d.set.Citations, d.set.QualitySnapshots, classify)
}

func TestCompleteness(t *testing.T) {
	empty := &types.Resource{}
	assert.Zero(t, completeness(empty))

	year := 2024
	full := &types.Resource{
		Title:           "t",
		ContentText:     "body",
		Summary:         "s",
		PublicationYear: &year,
		DOI:             "10.1/x",
	}
	full.SetSubjects([]string{"Physics"})
	full.SetCreators([]string{"Ada"})
	assert.InDelta(t, 1.0, completeness(full), 1e-9)

	// Title and content alone cover 2.0 of the 3.5 total weight.
	partial := &types.Resource{Title: "t", ContentText: "body"}
	assert.InDelta(t, 2.0/3.5, completeness(partial), 1e-9)
}

func TestTimeliness(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	undated := &types.Resource{}
	assert.InDelta(t, 0.5, timeliness(undated, now), 1e-9)

	recentYear := 2026
	recent := &types.Resource{PublicationYear: &recentYear}
	assert.InDelta(t, 1.0, timeliness(recent, now), 1e-9)

	oldYear := 1990
	old := &types.Resource{PublicationYear: &oldYear}
	assert.Zero(t, timeliness(old, now))

	// Fresh ingestion adds a bonus on top of the year-based score.
	ingested := now.Add(-24 * time.Hour)
	boosted := &types.Resource{PublicationYear: &oldYear, IngestedAt: &ingested}
	assert.Greater(t, timeliness(boosted, now), 0.0)
	assert.LessOrEqual(t, timeliness(boosted, now), 1.0)
}

func TestDomainReputation(t *testing.T) {
	assert.InDelta(t, 1.0, domainReputation("arxiv.org"), 1e-9)
	assert.InDelta(t, 1.0, domainReputation("export.arxiv.org"), 1e-9)
	assert.InDelta(t, 1.0, domainReputation("cs.stanford.edu"), 1e-9)
	// ".ac.uk" beats the shorter ".uk"-less fallbacks.
	assert.InDelta(t, 0.9, domainReputation("www.cam.ac.uk"), 1e-9)
	assert.InDelta(t, 0.3, domainReputation("random-blog.example"), 1e-9)
}

func TestScoreWeightedOverall(t *testing.T) {
	d := newTestDeps(t)
	svc := newQualityService(d)

	year := time.Now().UTC().Year()
	res := addReadyResource(t, d,
		withTitle("Convex optimization notes"),
		withContent("Notes on convex optimization and gradient descent methods."),
		withSubjects("Mathematics"),
		withYear(year),
	)

	q, err := svc.Score(d.dbc, res)
	require.NoError(t, err)

	w := qualityWeights()
	want := w[0]*q.Accuracy + w[1]*q.Completeness + w[2]*q.Consistency + w[3]*q.Timeliness + w[4]*q.Relevance
	assert.InDelta(t, want, q.Overall, 1e-9)
	assert.GreaterOrEqual(t, q.Overall, 0.0)
	assert.LessOrEqual(t, q.Overall, 1.0)

	// Each Score call appends one snapshot.
	latest, err := d.set.QualitySnapshots.Latest(d.dbc, res.ID)
	require.NoError(t, err)
	assert.InDelta(t, q.Overall, latest.Overall, 1e-9)
}

func TestScoreFlagsLowQuality(t *testing.T) {
	d := newTestDeps(t)
	svc := newQualityService(d)

	res := addReadyResource(t, d, withTitle(""))
	q, err := svc.Score(d.dbc, res)
	require.NoError(t, err)
	assert.True(t, q.NeedsReview)
	assert.Equal(t, "low_quality", q.ReviewReason)
}

func TestDetectOutliers(t *testing.T) {
	d := newTestDeps(t)
	svc := newQualityService(d)

	// Nineteen unremarkable resources and one with wildly different dims.
	for i := 0; i < 19; i++ {
		res := addReadyResource(t, d, withTitle(fmt.Sprintf("paper %d", i)))
		require.NoError(t, d.set.Resources.UpdateFields(d.dbc, res.ID, map[string]interface{}{
			"quality_accuracy":     0.6,
			"quality_completeness": 0.6,
			"quality_consistency":  0.6,
			"quality_timeliness":   0.6,
			"quality_relevance":    0.6,
		}))
	}
	odd := addReadyResource(t, d, withTitle("anomaly"))
	require.NoError(t, d.set.Resources.UpdateFields(d.dbc, odd.ID, map[string]interface{}{
		"quality_accuracy":     0.0,
		"quality_completeness": 1.0,
		"quality_consistency":  0.0,
		"quality_timeliness":   1.0,
		"quality_relevance":    0.0,
	}))

	flagged, err := svc.DetectOutliers(d.dbc, 0.05)
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)

	got, err := d.set.Resources.GetByID(d.dbc, odd.ID)
	require.NoError(t, err)
	assert.True(t, got.NeedsReview)
	assert.Contains(t, got.ReviewReason, "quality_outlier")
}

func TestDetectOutliersSkipsSmallLibraries(t *testing.T) {
	d := newTestDeps(t)
	svc := newQualityService(d)
	for i := 0; i < 5; i++ {
		addReadyResource(t, d, withTitle(fmt.Sprintf("paper %d", i)))
	}
	flagged, err := svc.DetectOutliers(d.dbc, 0.05)
	require.NoError(t, err)
	assert.Zero(t, flagged)
}

func TestScanDegradation(t *testing.T) {
	d := newTestDeps(t)
	svc := newQualityService(d)
	res := addReadyResource(t, d, withTitle("drifting"))

	// Healthy history, then a collapse in the latest snapshot.
	base := time.Now().UTC().Add(-4 * time.Hour)
	for i, overall := range []float64{0.8, 0.82, 0.78, 0.3} {
		require.NoError(t, d.set.QualitySnapshots.Append(d.dbc, &types.QualitySnapshot{
			ResourceID: res.ID,
			Overall:    overall,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}))
	}

	flagged, err := svc.ScanDegradation(d.dbc)
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)

	got, err := d.set.Resources.GetByID(d.dbc, res.ID)
	require.NoError(t, err)
	assert.True(t, got.NeedsReview)
	assert.Equal(t, "quality_degraded", got.ReviewReason)
}
