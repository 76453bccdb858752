package repos

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

type JobRunRepo interface {
	Enqueue(dbc dbctx.Context, jobType string, payload map[string]any, runAt time.Time, maxAttempts int) (*types.JobRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error)
	// ClaimNextRunnable atomically flips the oldest runnable job to running.
	// Returns (nil, nil) when the queue is empty. Jobs stuck in running
	// longer than staleRunning are reclaimed.
	ClaimNextRunnable(ctx context.Context, gdb *gorm.DB, staleRunning time.Duration) (*types.JobRun, error)
	// Reschedule pushes a transiently failed job back to queued with a
	// backoff delay, or to dead when attempts are exhausted.
	Reschedule(dbc dbctx.Context, job *types.JobRun, cause error, delay time.Duration) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, excluded []string, updates map[string]interface{}) (bool, error)
	PendingCount(dbc dbctx.Context, jobType string) (int64, error)
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{db: db, log: baseLog.With("repo", "JobRunRepo")}
}

func (r *jobRunRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *jobRunRepo) Enqueue(dbc dbctx.Context, jobType string, payload map[string]any, runAt time.Time, maxAttempts int) (*types.JobRun, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var pl datatypes.JSON
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		pl = datatypes.JSON(b)
	}
	job := &types.JobRun{
		ID:          uuid.New(),
		JobType:     jobType,
		Payload:     pl,
		Status:      types.JobStatusQueued,
		MaxAttempts: maxAttempts,
		RunAt:       runAt.UTC(),
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *jobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	var job types.JobRun
	if err := r.handle(dbc).WithContext(dbc.Ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRunRepo) ClaimNextRunnable(ctx context.Context, gdb *gorm.DB, staleRunning time.Duration) (*types.JobRun, error) {
	if gdb == nil {
		gdb = r.db
	}
	var claimed *types.JobRun
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		staleCutoff := now.Add(-staleRunning)

		q := tx.Where(
			"(status = ? AND run_at <= ?) OR (status = ? AND locked_at < ?)",
			types.JobStatusQueued, now, types.JobStatusRunning, staleCutoff,
		).Order("run_at ASC")
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var job types.JobRun
		if err := q.First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		job.Status = types.JobStatusRunning
		job.Attempts++
		job.LockedAt = &now
		job.HeartbeatAt = &now
		job.UpdatedAt = now
		if err := tx.Model(&types.JobRun{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
			"status":       job.Status,
			"attempts":     job.Attempts,
			"locked_at":    now,
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error; err != nil {
			return err
		}
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRunRepo) Reschedule(dbc dbctx.Context, job *types.JobRun, cause error, delay time.Duration) error {
	now := time.Now().UTC()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	updates := map[string]interface{}{
		"error":         msg,
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	}
	if job.Attempts >= job.MaxAttempts {
		updates["status"] = types.JobStatusDead
	} else {
		updates["status"] = types.JobStatusQueued
		updates["run_at"] = now.Add(delay)
	}
	return r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.JobRun{}).
		Where("id = ?", job.ID).
		Updates(updates).Error
}

func (r *jobRunRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, excluded []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	q := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.JobRun{}).
		Where("id = ?", id)
	if len(excluded) > 0 {
		q = q.Where("status NOT IN ?", excluded)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRunRepo) PendingCount(dbc dbctx.Context, jobType string) (int64, error) {
	var n int64
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.JobRun{}).
		Where("job_type = ? AND status IN ?", jobType, []string{types.JobStatusQueued, types.JobStatusRunning}).
		Count(&n).Error
	return n, err
}
