package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"

	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/data/repos/testutil"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/pkg/vecmath"
)

func TestResourceRepoCRUD(t *testing.T) {
	gdb := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewResourceRepo(gdb, testutil.Logger(t))

	res := &types.Resource{
		SourceURL:       "https://example.com/a",
		Title:           "Deep Learning",
		IngestionStatus: types.IngestionPending,
	}
	if err := repo.Create(dbc, res); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.ID == uuid.Nil {
		t.Fatal("Create should assign an id")
	}

	got, err := repo.GetBySourceURL(dbc, "https://example.com/a")
	if err != nil || got.ID != res.ID {
		t.Fatalf("GetBySourceURL: err=%v", err)
	}

	if err := repo.UpdateFields(dbc, res.ID, map[string]interface{}{"title": "Deep Learning 2"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, err = repo.GetByID(dbc, res.ID)
	if err != nil || got.Title != "Deep Learning 2" {
		t.Fatalf("GetByID after update: err=%v title=%q", err, got.Title)
	}

	if err := repo.Delete(dbc, res.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(dbc, res.ID); err == nil {
		t.Fatal("GetByID after delete should fail")
	}
}

func TestResourceRepoBulkGetPreservesOrder(t *testing.T) {
	gdb := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewResourceRepo(gdb, testutil.Logger(t))

	a := &types.Resource{SourceURL: "https://example.com/1", IngestionStatus: types.IngestionPending}
	b := &types.Resource{SourceURL: "https://example.com/2", IngestionStatus: types.IngestionPending}
	for _, r := range []*types.Resource{a, b} {
		if err := repo.Create(dbc, r); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	missing := uuid.New()
	rows, err := repo.BulkGet(dbc, []uuid.UUID{b.ID, missing, a.ID})
	if err != nil {
		t.Fatalf("BulkGet: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != b.ID || rows[1].ID != a.ID {
		t.Fatalf("BulkGet order wrong: %v", rows)
	}
}

func TestResourceRepoSearchFallback(t *testing.T) {
	gdb := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewResourceRepo(gdb, testutil.Logger(t))

	q := &types.Resource{SourceURL: "https://example.com/q", Title: "Quantum Computing", IngestionStatus: types.IngestionReady}
	c := &types.Resource{SourceURL: "https://example.com/c", Title: "Classical Mechanics", ContentText: "nothing quantum here", IngestionStatus: types.IngestionReady}
	for _, r := range []*types.Resource{q, c} {
		if err := repo.Create(dbc, r); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	hits, err := repo.SearchFTS(dbc, "quantum", 10)
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	// Title match weighs more than content match.
	if hits[0].ID != q.ID {
		t.Fatalf("title match should rank first, got %v", hits[0].ID)
	}
	if hits[0].Rank <= 0 {
		t.Fatal("lexical rank should be strictly positive")
	}
}

func TestResourceRepoEachWithEmbedding(t *testing.T) {
	gdb := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewResourceRepo(gdb, testutil.Logger(t))

	vec := vecmath.Normalize([]float32{1, 2, 3})
	with := &types.Resource{
		SourceURL:       "https://example.com/emb",
		Embedding:       types.EncodeVector(vec),
		IngestionStatus: types.IngestionReady,
	}
	without := &types.Resource{SourceURL: "https://example.com/noemb", IngestionStatus: types.IngestionReady}
	for _, r := range []*types.Resource{with, without} {
		if err := repo.Create(dbc, r); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	seen := 0
	err := repo.EachWithEmbedding(dbc, 10, func(row EmbeddingRow) error {
		seen++
		if row.ID != with.ID {
			t.Fatalf("unexpected row %v", row.ID)
		}
		if len(row.Vector) != 3 {
			t.Fatalf("vector len = %d", len(row.Vector))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("EachWithEmbedding: %v", err)
	}
	if seen != 1 {
		t.Fatalf("expected 1 embedded row, saw %d", seen)
	}
}
