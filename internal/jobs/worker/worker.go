// Package worker polls the job_runs table and executes claimed jobs on a
// bounded pool. Transient failures reschedule with exponential backoff;
// exhausted or permanent failures stop retrying.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/neoalexandria/backend/internal/data/repos"
	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/events"
	"github.com/neoalexandria/backend/internal/jobs/runtime"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/platform/apierr"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

type Options struct {
	PoolSize     int
	PollInterval time.Duration
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	// StaleRunning is how long a running job may go without a heartbeat
	// before another worker reclaims it.
	StaleRunning time.Duration
}

func (o *Options) normalize() {
	if o.PoolSize <= 0 {
		o.PoolSize = 4
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = time.Minute
	}
	if o.StaleRunning <= 0 {
		o.StaleRunning = 10 * time.Minute
	}
}

type Pool struct {
	log      *logger.Logger
	db       *gorm.DB
	repo     repos.JobRunRepo
	registry *runtime.Registry
	bus      events.Bus
	opts     Options

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(log *logger.Logger, db *gorm.DB, repo repos.JobRunRepo, reg *runtime.Registry, bus events.Bus, opts Options) *Pool {
	opts.normalize()
	return &Pool{
		log:      log.With("component", "WorkerPool"),
		db:       db,
		repo:     repo,
		registry: reg,
		bus:      bus,
		opts:     opts,
	}
}

func (p *Pool) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	p.log.Info("worker pool starting", "size", p.opts.PoolSize, "poll", p.opts.PollInterval.String())
	for i := 0; i < p.opts.PoolSize; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
}

func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.log.Info("worker pool stopped")
}

func (p *Pool) loop(ctx context.Context, worker int) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := p.repo.ClaimNextRunnable(ctx, p.db, p.opts.StaleRunning)
		if err != nil {
			p.log.Error("claim failed", "worker", worker, "error", err)
			if !sleepCtx(ctx, p.opts.PollInterval) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepCtx(ctx, p.opts.PollInterval) {
				return
			}
			continue
		}
		p.execute(ctx, job)
	}
}

func (p *Pool) execute(ctx context.Context, job *types.JobRun) {
	log := p.log.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)

	handler, ok := p.registry.Get(job.JobType)
	if !ok {
		log.Error("no handler registered; dead-lettering")
		_, _ = p.repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, job.ID, nil, map[string]interface{}{
			"status": types.JobStatusDead,
			"error":  fmt.Sprintf("no handler for job_type=%s", job.JobType),
		})
		return
	}

	rc := runtime.NewContext(ctx, p.db, job, p.repo, p.bus)

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("panic: %v", r)
				log.Error("job panicked", "panic", r, "stack", string(debug.Stack()))
			}
		}()
		runErr = handler.Run(rc)
	}()

	if runErr == nil {
		if job.Status == types.JobStatusRunning {
			// Handler returned nil without an explicit terminal call.
			rc.Succeed(job.Stage, nil)
		}
		log.Debug("job finished", "status", job.Status)
		return
	}

	if !apierr.Transient(runErr) {
		log.Warn("job failed permanently", "error", runErr)
		rc.Fail(job.Stage, runErr)
		return
	}

	delay := p.backoff(job.Attempts)
	if job.Attempts >= job.MaxAttempts {
		log.Error("job exhausted attempts; dead-lettering", "error", runErr)
	} else {
		log.Warn("job failed transiently; rescheduling", "error", runErr, "delay", delay.String())
	}
	if err := p.repo.Reschedule(dbctx.Context{Ctx: ctx}, job, runErr, delay); err != nil {
		log.Error("reschedule failed", "error", err)
	}
}

// backoff doubles per attempt starting from BackoffBase, capped.
func (p *Pool) backoff(attempts int) time.Duration {
	d := p.opts.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= p.opts.BackoffCap {
			return p.opts.BackoffCap
		}
	}
	if d > p.opts.BackoffCap {
		d = p.opts.BackoffCap
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
