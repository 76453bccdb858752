package app

import (
	"gorm.io/gorm"

	"github.com/neoalexandria/backend/internal/data/repos"
	"github.com/neoalexandria/backend/internal/http/handlers"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

type Handlers struct {
	Health    *handlers.HealthHandler
	Resources *handlers.ResourceHandler
	Search    *handlers.SearchHandler
	Graph     *handlers.GraphHandler
	Recommend *handlers.RecommendHandler
	Citations *handlers.CitationHandler
}

func wireHandlers(log *logger.Logger, gdb *gorm.DB, reposet repos.Set, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:    handlers.NewHealthHandler(gdb, services.AI),
		Resources: handlers.NewResourceHandler(log, services.Resources, services.Authority),
		Search:    handlers.NewSearchHandler(log, services.Search),
		Graph:     handlers.NewGraphHandler(log, services.Graph),
		Recommend: handlers.NewRecommendHandler(log, services.Recommend),
		Citations: handlers.NewCitationHandler(log, services.Citations, reposet.JobRuns),
	}
}
