package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/neoalexandria/backend/internal/ai"
	"github.com/neoalexandria/backend/internal/archive"
	"github.com/neoalexandria/backend/internal/data/repos"
	"github.com/neoalexandria/backend/internal/data/repos/testutil"
	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/events"
	"github.com/neoalexandria/backend/internal/extract"
	"github.com/neoalexandria/backend/internal/jobs/runtime"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/platform/apierr"
	"github.com/neoalexandria/backend/internal/services"
)

type harness struct {
	gdb       *gorm.DB
	set       repos.Set
	bus       events.Bus
	resources *services.ResourceService
	ingest    *Ingest
	dbc       dbctx.Context

	mu     sync.Mutex
	events []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("ARCHIVE_DIR", t.TempDir())

	log := testutil.Logger(t)
	gdb := testutil.DB(t)
	set := repos.NewSet(gdb, log)
	bus := events.NewBus(log, 2)
	t.Cleanup(bus.Close)

	aiSvc := ai.NewService(log, ai.Options{Backend: "stub", EmbedDim: 64, CacheSize: 16})
	arch, err := archive.New(log)
	require.NoError(t, err)

	authority := services.NewAuthorityService(log, set.Subjects)
	classify := services.NewClassifyService(log, aiSvc, set.Taxonomy)
	citations := services.NewCitationService(log, set.Citations, set.Resources, bus)
	quality := services.NewQualityService(log, aiSvc, set.Resources, set.Citations, set.QualitySnapshots, classify)

	h := &harness{
		gdb:       gdb,
		set:       set,
		bus:       bus,
		resources: services.NewResourceService(log, set, bus),
		dbc:       dbctx.Context{Ctx: context.Background()},
	}
	h.ingest = NewIngest(log, set, extract.New(log, 5*time.Second), arch, aiSvc, authority, classify, citations, quality)

	for _, name := range []string{events.ResourceCreated, events.ResourceReady, events.ResourceIngestFailed} {
		name := name
		bus.Subscribe(name, 0, func(ctx context.Context, p events.Payload) {
			h.mu.Lock()
			h.events = append(h.events, name)
			h.mu.Unlock()
		})
	}
	return h
}

func (h *harness) seen(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e == name {
			n++
		}
	}
	return n
}

func (h *harness) claim(t *testing.T) *types.JobRun {
	t.Helper()
	job, err := h.set.JobRuns.ClaimNextRunnable(context.Background(), h.gdb, 10*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

const samplePage = `<!DOCTYPE html>
<html lang="en">
<head>
  <title>Neural Networks in Practice</title>
  <meta name="description" content="Hands-on notes on machine learning systems.">
</head>
<body>
  <article>
    <h1>Neural Networks in Practice</h1>
    <p>These notes cover machine learning pipelines end to end. Training data
    quality dominates model choice. Deployment is where most systems fail.</p>
    <p>Background reading: <a href="https://example.com/backprop">the backprop paper</a>
    and <a href="https://github.com/example/trainer">the trainer code</a>.</p>
  </article>
</body>
</html>`

func TestIngestEndToEnd(t *testing.T) {
	h := newHarness(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	res, err := h.resources.Submit(h.dbc, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, types.IngestionPending, res.IngestionStatus)

	job := h.claim(t)
	rc := runtime.NewContext(context.Background(), h.gdb, job, h.set.JobRuns, h.bus)
	require.NoError(t, h.ingest.Run(rc))
	assert.Equal(t, types.JobStatusSucceeded, job.Status)

	got, err := h.set.Resources.GetByID(h.dbc, res.ID)
	require.NoError(t, err)
	assert.Equal(t, types.IngestionReady, got.IngestionStatus)
	assert.Equal(t, "Neural Networks in Practice", got.Title)
	assert.Equal(t, types.FormatHTML, got.Format)
	assert.NotEmpty(t, got.Summary)
	assert.NotEmpty(t, got.Embedding)
	assert.NotNil(t, got.IngestedAt)
	assert.Contains(t, got.SubjectList(), "Machine Learning")
	assert.Greater(t, got.QualityOverall, 0.0)

	// Anchors became unresolved citations.
	outbound, err := h.set.Citations.ListBySource(h.dbc, res.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, outbound)

	assert.Equal(t, 1, h.seen(events.ResourceCreated))
	assert.Equal(t, 1, h.seen(events.ResourceReady))
	assert.Equal(t, 0, h.seen(events.ResourceIngestFailed))
}

func TestIngestIsIdempotentPerURL(t *testing.T) {
	h := newHarness(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	first, err := h.resources.Submit(h.dbc, srv.URL)
	require.NoError(t, err)
	job := h.claim(t)
	rc := runtime.NewContext(context.Background(), h.gdb, job, h.set.JobRuns, h.bus)
	require.NoError(t, h.ingest.Run(rc))

	// Resubmitting the same URL returns the existing row and enqueues
	// nothing new.
	second, err := h.resources.Submit(h.dbc, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	pending, err := h.set.JobRuns.PendingCount(h.dbc, types.JobIngestResource)
	require.NoError(t, err)
	assert.Zero(t, pending)
	assert.Equal(t, 1, h.seen(events.ResourceCreated))
}

func TestIngestPermanentFailureMarksResourceFailed(t *testing.T) {
	h := newHarness(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	res, err := h.resources.Submit(h.dbc, srv.URL)
	require.NoError(t, err)

	job := h.claim(t)
	rc := runtime.NewContext(context.Background(), h.gdb, job, h.set.JobRuns, h.bus)
	err = h.ingest.Run(rc)
	require.Error(t, err)
	assert.True(t, apierr.IsKind(err, apierr.KindExtractionError))
	assert.False(t, apierr.Transient(err))

	got, err := h.set.Resources.GetByID(h.dbc, res.ID)
	require.NoError(t, err)
	assert.Equal(t, types.IngestionFailed, got.IngestionStatus)
	assert.NotEmpty(t, got.IngestionError)
	assert.Equal(t, 1, h.seen(events.ResourceIngestFailed))
}

func TestIngestTransientFailureLeavesResourceRetryable(t *testing.T) {
	h := newHarness(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	res, err := h.resources.Submit(h.dbc, srv.URL)
	require.NoError(t, err)

	job := h.claim(t)
	rc := runtime.NewContext(context.Background(), h.gdb, job, h.set.JobRuns, h.bus)
	err = h.ingest.Run(rc)
	require.Error(t, err)
	assert.True(t, apierr.Transient(err))

	// First attempt of five: the resource is not failed yet.
	got, err := h.set.Resources.GetByID(h.dbc, res.ID)
	require.NoError(t, err)
	assert.Equal(t, types.IngestionExtracting, got.IngestionStatus)
	assert.Equal(t, 0, h.seen(events.ResourceIngestFailed))
}

func TestQualityScanValidatesPayload(t *testing.T) {
	h := newHarness(t)
	log := testutil.Logger(t)
	classify := services.NewClassifyService(log, ai.NewService(log, ai.Options{Backend: "stub", EmbedDim: 8, CacheSize: 4}), h.set.Taxonomy)
	quality := services.NewQualityService(log, ai.NewService(log, ai.Options{Backend: "stub", EmbedDim: 8, CacheSize: 4}), h.set.Resources, h.set.Citations, h.set.QualitySnapshots, classify)
	scan := NewQualityScan(log, quality)

	job, err := h.set.JobRuns.Enqueue(h.dbc, types.JobQualityScan, map[string]any{"scan": "nope"}, time.Now().UTC(), 1)
	require.NoError(t, err)
	rc := runtime.NewContext(context.Background(), h.gdb, job, h.set.JobRuns, h.bus)
	err = scan.Run(rc)
	assert.True(t, apierr.IsKind(err, apierr.KindValidation))
}
