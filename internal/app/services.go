package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/neoalexandria/backend/internal/ai"
	"github.com/neoalexandria/backend/internal/archive"
	"github.com/neoalexandria/backend/internal/clients/websearch"
	"github.com/neoalexandria/backend/internal/data/repos"
	"github.com/neoalexandria/backend/internal/events"
	"github.com/neoalexandria/backend/internal/extract"
	"github.com/neoalexandria/backend/internal/graph"
	"github.com/neoalexandria/backend/internal/jobs/pipeline"
	jobruntime "github.com/neoalexandria/backend/internal/jobs/runtime"
	"github.com/neoalexandria/backend/internal/jobs/worker"
	"github.com/neoalexandria/backend/internal/platform/logger"
	"github.com/neoalexandria/backend/internal/services"
)

type Services struct {
	Bus       events.Bus
	AI        *ai.Service
	Extractor *extract.Extractor
	Archive   *archive.Store

	Authority *services.AuthorityService
	Classify  *services.ClassifyService
	Quality   *services.QualityService
	Citations *services.CitationService
	Search    *services.SearchService
	Recommend *services.RecommendService
	Resources *services.ResourceService
	Graph     *graph.Service

	JobWorker *worker.Pool
	Scheduler *worker.Scheduler
}

func wireServices(gdb *gorm.DB, log *logger.Logger, cfg Config, reposet repos.Set) (Services, error) {
	log.Info("Wiring services...")

	bus := events.NewBus(log, 4)
	if cfg.RedisAddr != "" {
		mirrored, err := events.NewRedisBus(log, bus)
		if err != nil {
			return Services{}, fmt.Errorf("init redis bus: %w", err)
		}
		bus = mirrored
	}

	aiSvc := ai.NewService(log, ai.OptionsFromEnv())
	extractor := extract.New(log, cfg.FetchTimeout)

	arch, err := archive.New(log)
	if err != nil {
		return Services{}, fmt.Errorf("init archive: %w", err)
	}

	authority := services.NewAuthorityService(log, reposet.Subjects)
	classify := services.NewClassifyService(log, aiSvc, reposet.Taxonomy)
	quality := services.NewQualityService(log, aiSvc, reposet.Resources, reposet.Citations, reposet.QualitySnapshots, classify)
	citations := services.NewCitationService(log, reposet.Citations, reposet.Resources, bus)
	search := services.NewSearchService(log, aiSvc, reposet.Resources, services.NewEmbedReranker(log, aiSvc, reposet.Resources))

	provider, err := websearch.NewClient(log)
	if err != nil {
		return Services{}, fmt.Errorf("init websearch client: %w", err)
	}
	recommend := services.NewRecommendService(log, aiSvc, reposet.Resources, reposet.Subjects, provider, services.RecommendOptionsFromEnv())

	resources := services.NewResourceService(log, reposet, bus)
	graphSvc := graph.NewService(log, reposet, bus, graph.OptionsFromEnv())

	registry := jobruntime.NewRegistry()
	handlers := []jobruntime.Handler{
		pipeline.NewIngest(log, reposet, extractor, arch, aiSvc, authority, classify, citations, quality),
		pipeline.NewCitationResolve(log, citations),
		pipeline.NewImportanceCompute(log, citations),
		pipeline.NewQualityScan(log, quality),
	}
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			return Services{}, fmt.Errorf("register job handler: %w", err)
		}
	}

	pool := worker.NewPool(log, gdb, reposet.JobRuns, registry, bus, worker.Options{
		PoolSize: cfg.WorkerPoolSize,
	})
	scheduler := worker.NewScheduler(log, reposet.JobRuns, worker.DefaultPeriodicTasks())

	return Services{
		Bus:       bus,
		AI:        aiSvc,
		Extractor: extractor,
		Archive:   arch,
		Authority: authority,
		Classify:  classify,
		Quality:   quality,
		Citations: citations,
		Search:    search,
		Recommend: recommend,
		Resources: resources,
		Graph:     graphSvc,
		JobWorker: pool,
		Scheduler: scheduler,
	}, nil
}
