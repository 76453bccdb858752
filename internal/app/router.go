package app

import (
	"github.com/gin-gonic/gin"

	"github.com/neoalexandria/backend/internal/platform/logger"
	"github.com/neoalexandria/backend/internal/server"
)

func wireRouter(log *logger.Logger, handlers Handlers) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		Log:              log,
		HealthHandler:    handlers.Health,
		ResourceHandler:  handlers.Resources,
		SearchHandler:    handlers.Search,
		GraphHandler:     handlers.Graph,
		RecommendHandler: handlers.Recommend,
		CitationHandler:  handlers.Citations,
	})
}
