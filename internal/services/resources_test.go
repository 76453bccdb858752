package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/events"
	"github.com/neoalexandria/backend/internal/platform/apierr"
)

func newResourceService(d *testDeps, bus events.Bus) *ResourceService {
	return NewResourceService(d.log, d.set, bus)
}

func TestSubmitValidatesURL(t *testing.T) {
	d := newTestDeps(t)
	svc := newResourceService(d, nil)

	for _, raw := range []string{"", "   ", "not a url", "ftp//missing"} {
		_, err := svc.Submit(d.dbc, raw)
		assert.Equal(t, apierr.KindValidation, apierr.KindOf(err), "raw=%q", raw)
	}
}

func TestSubmitCreatesPendingAndEnqueues(t *testing.T) {
	d := newTestDeps(t)
	svc := newResourceService(d, nil)

	res, err := svc.Submit(d.dbc, "HTTPS://Example.ORG/Papers/?utm_source=feed#frag")
	require.NoError(t, err)
	assert.Equal(t, types.IngestionPending, res.IngestionStatus)
	assert.Equal(t, "https://example.org/Papers", res.SourceURL)

	pending, err := d.set.JobRuns.PendingCount(d.dbc, types.JobIngestResource)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)
}

func TestSubmitIsIdempotentPerCanonicalURL(t *testing.T) {
	d := newTestDeps(t)
	svc := newResourceService(d, nil)

	first, err := svc.Submit(d.dbc, "https://example.org/a")
	require.NoError(t, err)
	second, err := svc.Submit(d.dbc, "https://EXAMPLE.org/a/")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	pending, err := d.set.JobRuns.PendingCount(d.dbc, types.JobIngestResource)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)
}

func TestPatchRejectsUnknownFields(t *testing.T) {
	d := newTestDeps(t)
	svc := newResourceService(d, nil)
	authority := NewAuthorityService(d.log, d.set.Subjects)
	res := addReadyResource(t, d)

	_, err := svc.Patch(d.dbc, res.ID, map[string]any{"content_text": "nope"}, authority)
	assert.Equal(t, apierr.KindValidation, apierr.KindOf(err))

	_, err = svc.Patch(d.dbc, uuid.New(), map[string]any{"title": "x"}, authority)
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
}

func TestPatchCanonicalizesSubjects(t *testing.T) {
	d := newTestDeps(t)
	svc := newResourceService(d, nil)
	authority := NewAuthorityService(d.log, d.set.Subjects)
	res := addReadyResource(t, d, withSubjects("Old Subject"))

	got, err := svc.Patch(d.dbc, res.ID, map[string]any{
		"title":    "Renamed",
		"subjects": []any{"ml", "machine learning", "physics"},
	}, authority)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, []string{"Machine Learning", "Physics"}, got.SubjectList())
}

func TestDeleteCascades(t *testing.T) {
	d := newTestDeps(t)
	svc := newResourceService(d, nil)
	authority := NewAuthorityService(d.log, d.set.Subjects)

	res := addReadyResource(t, d)
	other := addReadyResource(t, d)

	_, err := authority.ResolveAll(d.dbc, res.ID, []string{"physics"})
	require.NoError(t, err)
	require.NoError(t, d.set.Citations.CreateBatch(d.dbc, []*types.Citation{
		{SourceResourceID: res.ID, TargetURL: other.SourceURL, CitationType: types.CitationTypeGeneral},
		{SourceResourceID: other.ID, TargetURL: res.SourceURL, TargetResourceID: &res.ID, CitationType: types.CitationTypeGeneral},
	}))
	hyp := &types.DiscoveryHypothesis{
		AResourceID: res.ID,
		CResourceID: other.ID,
		Type:        types.DiscoveryOpen,
	}
	require.NoError(t, d.set.Hypotheses.Create(d.dbc, hyp))

	require.NoError(t, svc.Delete(d.dbc, res.ID))

	_, err = svc.Get(d.dbc, res.ID)
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))

	outbound, err := d.set.Citations.ListBySource(d.dbc, res.ID)
	require.NoError(t, err)
	assert.Empty(t, outbound)

	// The inbound citation survives but loses its resolution.
	remaining, err := d.set.Citations.ListBySource(d.dbc, other.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Nil(t, remaining[0].TargetResourceID)

	gotHyp, err := d.set.Hypotheses.GetByID(d.dbc, hyp.ID)
	require.NoError(t, err)
	assert.True(t, gotHyp.Stale)
}

func TestReingestResetsStatus(t *testing.T) {
	d := newTestDeps(t)
	svc := newResourceService(d, nil)

	res := addReadyResource(t, d)
	require.NoError(t, d.set.Resources.UpdateFields(d.dbc, res.ID, map[string]interface{}{
		"ingestion_status": types.IngestionFailed,
		"ingestion_error":  "fetch exploded",
	}))

	job, err := svc.Reingest(d.dbc, res.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobIngestResource, job.JobType)

	got, err := svc.Get(d.dbc, res.ID)
	require.NoError(t, err)
	assert.Equal(t, types.IngestionPending, got.IngestionStatus)
	assert.Empty(t, got.IngestionError)
}
