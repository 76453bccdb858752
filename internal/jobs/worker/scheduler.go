package worker

import (
	"context"
	"sync"
	"time"

	"github.com/neoalexandria/backend/internal/data/repos"
	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/platform/envutil"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

type PeriodicTask struct {
	JobType  string
	Payload  map[string]any
	Interval time.Duration
}

// DefaultPeriodicTasks reads cadences from the environment. Citation
// resolution and the outlier scan run daily, importance recomputation and
// the degradation scan weekly.
func DefaultPeriodicTasks() []PeriodicTask {
	return []PeriodicTask{
		{
			JobType:  types.JobCitationResolve,
			Interval: envutil.Duration("CITATION_RESOLVE_INTERVAL", 24*time.Hour),
		},
		{
			JobType:  types.JobImportanceCompute,
			Interval: envutil.Duration("IMPORTANCE_COMPUTE_INTERVAL", 7*24*time.Hour),
		},
		{
			JobType:  types.JobQualityScan,
			Payload:  map[string]any{"scan": "outlier"},
			Interval: envutil.Duration("QUALITY_OUTLIER_INTERVAL", 24*time.Hour),
		},
		{
			JobType:  types.JobQualityScan,
			Payload:  map[string]any{"scan": "degradation"},
			Interval: envutil.Duration("QUALITY_DEGRADATION_INTERVAL", 7*24*time.Hour),
		},
	}
}

// Scheduler enqueues periodic jobs. A task is skipped while a prior run of
// the same type is still queued or running, so a slow pipeline never stacks.
type Scheduler struct {
	log   *logger.Logger
	repo  repos.JobRunRepo
	tasks []PeriodicTask

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(log *logger.Logger, repo repos.JobRunRepo, tasks []PeriodicTask) *Scheduler {
	return &Scheduler{
		log:   log.With("component", "Scheduler"),
		repo:  repo,
		tasks: tasks,
	}
}

func (s *Scheduler) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	for _, task := range s.tasks {
		task := task
		s.wg.Add(1)
		go s.run(ctx, task)
	}
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, task PeriodicTask) {
	defer s.wg.Done()
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, task)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, task PeriodicTask) {
	dbc := dbctx.Context{Ctx: ctx}
	pending, err := s.repo.PendingCount(dbc, task.JobType)
	if err != nil {
		s.log.Error("pending count failed", "job_type", task.JobType, "error", err)
		return
	}
	if pending > 0 {
		s.log.Debug("periodic task still in flight; skipping", "job_type", task.JobType)
		return
	}
	if _, err := s.repo.Enqueue(dbc, task.JobType, task.Payload, time.Now().UTC(), 3); err != nil {
		s.log.Error("periodic enqueue failed", "job_type", task.JobType, "error", err)
		return
	}
	s.log.Info("periodic task enqueued", "job_type", task.JobType)
}
