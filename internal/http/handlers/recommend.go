package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/neoalexandria/backend/internal/http/response"
	"github.com/neoalexandria/backend/internal/platform/logger"
	"github.com/neoalexandria/backend/internal/services"
)

type RecommendHandler struct {
	log       *logger.Logger
	recommend *services.RecommendService
}

func NewRecommendHandler(log *logger.Logger, recommend *services.RecommendService) *RecommendHandler {
	return &RecommendHandler{
		log:       log.With("handler", "RecommendHandler"),
		recommend: recommend,
	}
}

// GET /recommendations?limit
func (h *RecommendHandler) List(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.ValidationError(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	result, err := h.recommend.Recommend(reqDB(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
