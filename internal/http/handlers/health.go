package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/neoalexandria/backend/internal/ai"
)

type HealthHandler struct {
	db *gorm.DB
	ai *ai.Service
}

func NewHealthHandler(db *gorm.DB, aiSvc *ai.Service) *HealthHandler {
	return &HealthHandler{db: db, ai: aiSvc}
}

// GET /healthcheck
func (h *HealthHandler) Check(c *gin.Context) {
	dbOK := false
	if h.db != nil {
		if sqlDB, err := h.db.DB(); err == nil {
			dbOK = sqlDB.PingContext(c.Request.Context()) == nil
		}
	}
	out := gin.H{"status": "ok", "database": dbOK}
	if h.ai != nil {
		out["ai"] = h.ai.Health()
	}
	code := http.StatusOK
	if !dbOK {
		out["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, out)
}
