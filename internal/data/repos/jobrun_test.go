package repos

import (
	"context"
	"testing"
	"time"

	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/data/repos/testutil"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
)

func TestJobRunClaimAndReschedule(t *testing.T) {
	gdb := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewJobRunRepo(gdb, testutil.Logger(t))

	job, err := repo.Enqueue(dbc, types.JobIngestResource, map[string]any{"resource_id": "x"}, time.Now().Add(-time.Second), 2)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	claimed, err := repo.ClaimNextRunnable(context.Background(), gdb, 30*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("expected to claim %v, got %v", job.ID, claimed)
	}
	if claimed.Status != types.JobStatusRunning || claimed.Attempts != 1 {
		t.Fatalf("claim state wrong: %+v", claimed)
	}

	// Nothing else runnable.
	if next, _ := repo.ClaimNextRunnable(context.Background(), gdb, 30*time.Minute); next != nil {
		t.Fatalf("queue should be empty, got %v", next.ID)
	}

	// Transient failure: back to queued with delay.
	if err := repo.Reschedule(dbc, claimed, context.DeadlineExceeded, time.Minute); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	got, _ := repo.GetByID(dbc, job.ID)
	if got.Status != types.JobStatusQueued {
		t.Fatalf("status = %s, want queued", got.Status)
	}

	// Exhaust attempts: dead-letter.
	got.Attempts = got.MaxAttempts
	if err := repo.Reschedule(dbc, got, context.DeadlineExceeded, time.Minute); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	got, _ = repo.GetByID(dbc, job.ID)
	if got.Status != types.JobStatusDead {
		t.Fatalf("status = %s, want dead", got.Status)
	}
}

func TestJobRunUpdateUnlessStatus(t *testing.T) {
	gdb := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewJobRunRepo(gdb, testutil.Logger(t))

	job, err := repo.Enqueue(dbc, types.JobQualityScan, nil, time.Now(), 1)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ok, err := repo.UpdateFieldsUnlessStatus(dbc, job.ID, []string{types.JobStatusDead}, map[string]interface{}{"stage": "scoring"})
	if err != nil || !ok {
		t.Fatalf("update should apply: ok=%v err=%v", ok, err)
	}

	ok, err = repo.UpdateFieldsUnlessStatus(dbc, job.ID, []string{types.JobStatusQueued}, map[string]interface{}{"stage": "blocked"})
	if err != nil || ok {
		t.Fatalf("excluded status should reject update: ok=%v err=%v", ok, err)
	}
}
