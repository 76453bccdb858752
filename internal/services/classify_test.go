package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/neoalexandria/backend/internal/domain"
)

func TestRuleClassify(t *testing.T) {
	code, score := RuleClassify("Machine learning algorithms", []string{"Computer Science"}, "A survey of neural network methods in computing.")
	assert.Equal(t, "004", code)
	assert.Greater(t, score, ruleScoreThreshold)

	// A single weak keyword stays below the threshold.
	code, score = RuleClassify("On testing", nil, "")
	assert.Empty(t, code)
	assert.Zero(t, score)
}

func TestAssignPersistsRuleAssignment(t *testing.T) {
	d := newTestDeps(t)
	svc := NewClassifyService(d.log, d.ai, d.set.Taxonomy)

	res := addReadyResource(t, d,
		withTitle("Machine learning algorithms for computer vision"),
		withSubjects("Machine Learning"),
	)

	code, err := svc.Assign(d.dbc, res)
	require.NoError(t, err)
	assert.Equal(t, "004", code)

	rows, err := d.set.Taxonomy.AssignmentsByResource(d.dbc, res.ID)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, "004", rows[0].Code)
	assert.Greater(t, rows[0].Confidence, 0.5)
	assert.LessOrEqual(t, rows[0].Confidence, 1.0)
}

func TestAssignIsIdempotent(t *testing.T) {
	d := newTestDeps(t)
	svc := NewClassifyService(d.log, d.ai, d.set.Taxonomy)

	res := addReadyResource(t, d,
		withTitle("Machine learning algorithms for computer vision"),
		withSubjects("Machine Learning"),
	)

	_, err := svc.Assign(d.dbc, res)
	require.NoError(t, err)
	first, err := d.set.Taxonomy.AssignmentsByResource(d.dbc, res.ID)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// Re-ingest runs the classify stage again; nil-node rule rows must not
	// pile up across passes.
	_, err = svc.Assign(d.dbc, res)
	require.NoError(t, err)
	second, err := d.set.Taxonomy.AssignmentsByResource(d.dbc, res.ID)
	require.NoError(t, err)
	assert.Len(t, second, len(first))
}

func TestAssignTaxonomyBands(t *testing.T) {
	d := newTestDeps(t)
	svc := NewClassifyService(d.log, d.ai, d.set.Taxonomy)

	require.NoError(t, d.set.Taxonomy.CreateNode(d.dbc, &types.TaxonomyNode{Name: "machine learning"}))
	require.NoError(t, d.set.Taxonomy.CreateNode(d.dbc, &types.TaxonomyNode{Name: "gardening"}))

	res := addReadyResource(t, d,
		withTitle("machine learning"),
		withContent("machine learning machine learning machine learning"),
	)

	_, err := svc.Assign(d.dbc, res)
	require.NoError(t, err)

	rows, err := d.set.Taxonomy.AssignmentsByResource(d.dbc, res.ID)
	require.NoError(t, err)
	for _, a := range rows {
		// Everything persisted cleared the floor; nothing matched "gardening".
		assert.GreaterOrEqual(t, a.Confidence, classifyDropBelow)
	}
}

func TestHasFlaggedAssignment(t *testing.T) {
	d := newTestDeps(t)
	svc := NewClassifyService(d.log, d.ai, d.set.Taxonomy)
	res := addReadyResource(t, d)

	flagged, err := svc.HasFlaggedAssignment(d.dbc, res.ID)
	require.NoError(t, err)
	assert.False(t, flagged)

	require.NoError(t, d.set.Taxonomy.UpsertAssignment(d.dbc, &types.ResourceTaxonomyAssignment{
		ResourceID:  res.ID,
		Code:        "004",
		Confidence:  0.4,
		NeedsReview: true,
	}))
	flagged, err = svc.HasFlaggedAssignment(d.dbc, res.ID)
	require.NoError(t, err)
	assert.True(t, flagged)
}

func TestNormalizeRuleScore(t *testing.T) {
	assert.InDelta(t, 0.5, normalizeRuleScore(ruleScoreThreshold), 1e-9)
	assert.Greater(t, normalizeRuleScore(3.0), normalizeRuleScore(1.5))
	assert.LessOrEqual(t, normalizeRuleScore(1000), 1.0)
}
