package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/neoalexandria/backend/internal/graph"
	"github.com/neoalexandria/backend/internal/http/response"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

type GraphHandler struct {
	log   *logger.Logger
	graph *graph.Service
}

func NewGraphHandler(log *logger.Logger, svc *graph.Service) *GraphHandler {
	return &GraphHandler{
		log:   log.With("handler", "GraphHandler"),
		graph: svc,
	}
}

// GET /graph/resource/:id/neighbors?hops&edge_types&min_weight&limit
func (h *GraphHandler) Neighbors(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	req := graph.NeighborsRequest{Start: id}

	if raw := c.Query("hops"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.ValidationError(c, "hops must be an integer")
			return
		}
		req.Hops = n
	}
	if raw := c.Query("edge_types"); raw != "" {
		req.EdgeTypes = strings.Split(raw, ",")
	}
	if raw := c.Query("min_weight"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < 0 || f > 1 {
			response.ValidationError(c, "min_weight must be in [0,1]")
			return
		}
		req.MinWeight = f
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.ValidationError(c, "limit must be a positive integer")
			return
		}
		req.Limit = n
	}

	neighbors, err := h.graph.Neighbors(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"neighbors": neighbors})
}

// GET /graph/overview?limit_edges
func (h *GraphHandler) Overview(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit_edges"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.ValidationError(c, "limit_edges must be a positive integer")
			return
		}
		limit = n
	}
	response.OK(c, h.graph.Overview(limit))
}

// POST /graph/discovery/open
func (h *GraphHandler) DiscoverOpen(c *gin.Context) {
	var body struct {
		ResourceID uuid.UUID `json:"resource_id"`
		Limit      int       `json:"limit"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.ResourceID == uuid.Nil {
		response.ValidationError(c, "body must be {resource_id, limit?}")
		return
	}
	hyps, err := h.graph.DiscoverOpen(reqDB(c), body.ResourceID, body.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"hypotheses": hyps})
}

// POST /graph/discovery/closed
func (h *GraphHandler) DiscoverClosed(c *gin.Context) {
	var body struct {
		FromID   uuid.UUID `json:"from_id"`
		ToID     uuid.UUID `json:"to_id"`
		MaxPaths int       `json:"max_paths"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.FromID == uuid.Nil || body.ToID == uuid.Nil {
		response.ValidationError(c, "body must be {from_id, to_id, max_paths?}")
		return
	}
	result, hyp, err := h.graph.DiscoverClosed(reqDB(c), body.FromID, body.ToID, body.MaxPaths)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := gin.H{
		"paths":               result.Paths,
		"semantic_similarity": result.SemanticSimilarity,
		"common_neighbors":    result.CommonNeighbors,
	}
	if hyp != nil {
		out["hypothesis"] = hyp
	}
	response.OK(c, out)
}

// POST /graph/hypotheses/:id/validate
func (h *GraphHandler) Validate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body struct {
		IsValid *bool  `json:"is_valid"`
		Notes   string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.IsValid == nil {
		response.ValidationError(c, "body must be {is_valid, notes?}")
		return
	}
	hyp, err := h.graph.Validate(reqDB(c), id, *body.IsValid, body.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, hyp)
}
