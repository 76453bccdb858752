package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"

	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/data/repos/testutil"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
)

func TestCitationRepoBatchAndResolve(t *testing.T) {
	gdb := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewCitationRepo(gdb, testutil.Logger(t))

	source := uuid.New()
	target := uuid.New()
	batch := []*types.Citation{
		{SourceResourceID: source, TargetURL: "https://example.com/x", Position: 0, CitationType: types.CitationTypeGeneral},
		{SourceResourceID: source, TargetURL: "https://example.com/y", Position: 1, CitationType: types.CitationTypeReference},
	}
	if err := repo.CreateBatch(dbc, batch); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	// Re-extraction hits the unique index and is a no-op.
	again := []*types.Citation{
		{SourceResourceID: source, TargetURL: "https://example.com/x", Position: 0, CitationType: types.CitationTypeGeneral},
	}
	if err := repo.CreateBatch(dbc, again); err != nil {
		t.Fatalf("CreateBatch duplicate: %v", err)
	}
	rows, err := repo.ListBySource(dbc, source)
	if err != nil || len(rows) != 2 {
		t.Fatalf("ListBySource: len=%d err=%v", len(rows), err)
	}

	unresolved, err := repo.ListUnresolved(dbc, 0)
	if err != nil || len(unresolved) != 2 {
		t.Fatalf("ListUnresolved: len=%d err=%v", len(unresolved), err)
	}

	if err := repo.Resolve(dbc, rows[0].ID, target); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	inbound, err := repo.CountInbound(dbc, target)
	if err != nil || inbound != 1 {
		t.Fatalf("CountInbound = %d, err=%v", inbound, err)
	}

	if err := repo.ClearTarget(dbc, target); err != nil {
		t.Fatalf("ClearTarget: %v", err)
	}
	inbound, _ = repo.CountInbound(dbc, target)
	if inbound != 0 {
		t.Fatalf("CountInbound after clear = %d", inbound)
	}

	if err := repo.DeleteBySource(dbc, source); err != nil {
		t.Fatalf("DeleteBySource: %v", err)
	}
	rows, _ = repo.ListBySource(dbc, source)
	if len(rows) != 0 {
		t.Fatalf("expected no citations after delete, got %d", len(rows))
	}
}
