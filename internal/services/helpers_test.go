package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/neoalexandria/backend/internal/ai"
	"github.com/neoalexandria/backend/internal/data/repos"
	"github.com/neoalexandria/backend/internal/data/repos/testutil"
	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

type testDeps struct {
	log *logger.Logger
	set repos.Set
	dbc dbctx.Context
	ai  *ai.Service
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()
	log := testutil.Logger(t)
	gdb := testutil.DB(t)
	return &testDeps{
		log: log,
		set: repos.NewSet(gdb, log),
		dbc: dbctx.Context{Ctx: context.Background()},
		ai:  ai.NewService(log, ai.Options{Backend: "stub", EmbedDim: 64, CacheSize: 16}),
	}
}

type resourceOpt func(*types.Resource)

func withTitle(title string) resourceOpt {
	return func(r *types.Resource) { r.Title = title }
}

func withContent(text string) resourceOpt {
	return func(r *types.Resource) { r.ContentText = text }
}

func withSubjects(subjects ...string) resourceOpt {
	return func(r *types.Resource) { r.SetSubjects(subjects) }
}

func withQuality(overall float64) resourceOpt {
	return func(r *types.Resource) { r.QualityOverall = overall }
}

func withYear(year int) resourceOpt {
	return func(r *types.Resource) { r.PublicationYear = &year }
}

func withEmbedding(vec []float32) resourceOpt {
	return func(r *types.Resource) { r.Embedding = types.EncodeVector(vec) }
}

// addReadyResource inserts a ready resource with a unique source URL.
func addReadyResource(t *testing.T, d *testDeps, opts ...resourceOpt) *types.Resource {
	t.Helper()
	now := time.Now().UTC()
	res := &types.Resource{
		ID:              uuid.New(),
		SourceURL:       "https://example.org/" + uuid.NewString(),
		Title:           "untitled",
		Language:        "en",
		IngestionStatus: types.IngestionReady,
		IngestedAt:      &now,
	}
	for _, opt := range opts {
		opt(res)
	}
	require.NoError(t, d.set.Resources.Create(d.dbc, res))
	return res
}
