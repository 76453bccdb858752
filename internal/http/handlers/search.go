package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/neoalexandria/backend/internal/http/response"
	"github.com/neoalexandria/backend/internal/platform/logger"
	"github.com/neoalexandria/backend/internal/services"
)

type SearchHandler struct {
	log    *logger.Logger
	search *services.SearchService
}

func NewSearchHandler(log *logger.Logger, search *services.SearchService) *SearchHandler {
	return &SearchHandler{
		log:    log.With("handler", "SearchHandler"),
		search: search,
	}
}

// POST /search
func (h *SearchHandler) Search(c *gin.Context) {
	var req services.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "malformed search request")
		return
	}
	result, err := h.search.Search(reqDB(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
