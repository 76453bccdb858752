package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"

	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/data/repos/testutil"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
)

func TestSubjectRepoVariantsAndUsage(t *testing.T) {
	gdb := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewSubjectRepo(gdb, testutil.Logger(t))

	s := &types.AuthoritySubject{CanonicalForm: "Machine Learning", UsageCount: 0}
	if err := repo.Create(dbc, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.AddVariant(dbc, s.ID, "ml"); err != nil {
		t.Fatalf("AddVariant: %v", err)
	}
	// Duplicate variant is a no-op.
	if err := repo.AddVariant(dbc, s.ID, "ml"); err != nil {
		t.Fatalf("AddVariant duplicate: %v", err)
	}

	byVariant, err := repo.GetByVariant(dbc, "ml")
	if err != nil || byVariant.ID != s.ID {
		t.Fatalf("GetByVariant: err=%v", err)
	}

	if err := repo.IncrementUsage(dbc, s.ID, 1); err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}
	got, err := repo.GetByCanonical(dbc, "Machine Learning")
	if err != nil || got.UsageCount != 1 {
		t.Fatalf("usage = %d, want 1 (err=%v)", got.UsageCount, err)
	}
}

func TestSubjectRepoLinkResource(t *testing.T) {
	gdb := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewSubjectRepo(gdb, testutil.Logger(t))

	s := &types.AuthoritySubject{CanonicalForm: "Physics"}
	if err := repo.Create(dbc, s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	resID := uuid.New()
	if err := repo.LinkResource(dbc, resID, s.ID); err != nil {
		t.Fatalf("LinkResource: %v", err)
	}
	if err := repo.LinkResource(dbc, resID, s.ID); err != nil {
		t.Fatalf("LinkResource duplicate: %v", err)
	}
	ids, err := repo.ResourceIDsBySubject(dbc, s.ID)
	if err != nil || len(ids) != 1 || ids[0] != resID {
		t.Fatalf("ResourceIDsBySubject: ids=%v err=%v", ids, err)
	}

	if err := repo.UnlinkResource(dbc, resID); err != nil {
		t.Fatalf("UnlinkResource: %v", err)
	}
	ids, _ = repo.ResourceIDsBySubject(dbc, s.ID)
	if len(ids) != 0 {
		t.Fatalf("expected no links, got %v", ids)
	}
}
