package server

import (
	"github.com/gin-gonic/gin"

	"github.com/neoalexandria/backend/internal/http/handlers"
	"github.com/neoalexandria/backend/internal/http/middleware"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

type RouterConfig struct {
	Log              *logger.Logger
	HealthHandler    *handlers.HealthHandler
	ResourceHandler  *handlers.ResourceHandler
	SearchHandler    *handlers.SearchHandler
	GraphHandler     *handlers.GraphHandler
	RecommendHandler *handlers.RecommendHandler
	CitationHandler  *handlers.CitationHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	if cfg.Log != nil {
		router.Use(middleware.RequestLog(cfg.Log))
	}

	if cfg.HealthHandler != nil {
		router.GET("/healthcheck", cfg.HealthHandler.Check)
	}

	if cfg.ResourceHandler != nil {
		router.POST("/resources", cfg.ResourceHandler.Create)
		router.GET("/resources/:id", cfg.ResourceHandler.Get)
		router.GET("/resources/:id/status", cfg.ResourceHandler.Status)
		router.PUT("/resources/:id", cfg.ResourceHandler.Update)
		router.DELETE("/resources/:id", cfg.ResourceHandler.Delete)
		router.POST("/resources/:id/reingest", cfg.ResourceHandler.Reingest)
	}

	if cfg.SearchHandler != nil {
		router.POST("/search", cfg.SearchHandler.Search)
	}

	if cfg.GraphHandler != nil {
		graph := router.Group("/graph")
		{
			graph.GET("/resource/:id/neighbors", cfg.GraphHandler.Neighbors)
			graph.GET("/overview", cfg.GraphHandler.Overview)
			graph.POST("/discovery/open", cfg.GraphHandler.DiscoverOpen)
			graph.POST("/discovery/closed", cfg.GraphHandler.DiscoverClosed)
			graph.POST("/hypotheses/:id/validate", cfg.GraphHandler.Validate)
		}
	}

	if cfg.RecommendHandler != nil {
		router.GET("/recommendations", cfg.RecommendHandler.List)
	}

	if cfg.CitationHandler != nil {
		citations := router.Group("/citations")
		{
			citations.GET("/resources/:id/citations", cfg.CitationHandler.ListForResource)
			citations.POST("/resolve", cfg.CitationHandler.Resolve)
			citations.POST("/importance/compute", cfg.CitationHandler.ComputeImportance)
		}
	}

	return router
}
