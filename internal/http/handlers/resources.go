package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/http/response"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/platform/logger"
	"github.com/neoalexandria/backend/internal/services"
)

type ResourceHandler struct {
	log       *logger.Logger
	resources *services.ResourceService
	authority *services.AuthorityService
}

func NewResourceHandler(log *logger.Logger, resources *services.ResourceService, authority *services.AuthorityService) *ResourceHandler {
	return &ResourceHandler{
		log:       log.With("handler", "ResourceHandler"),
		resources: resources,
		authority: authority,
	}
}

func reqDB(c *gin.Context) dbctx.Context {
	return dbctx.Context{Ctx: c.Request.Context()}
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// POST /resources
func (h *ResourceHandler) Create(c *gin.Context) {
	var body struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.ValidationError(c, "body must be {url}")
		return
	}
	res, err := h.resources.Submit(reqDB(c), body.URL)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{
		"id":               res.ID,
		"ingestion_status": res.IngestionStatus,
	})
}

// GET /resources/:id
func (h *ResourceHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.resources.Get(reqDB(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if c.Query("include") != "content" {
		// content_text is omitted from the projection unless asked for.
		clone := *res
		clone.ContentText = ""
		res = &clone
	}
	response.OK(c, res)
}

// GET /resources/:id/status
func (h *ResourceHandler) Status(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.resources.Get(reqDB(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := gin.H{"ingestion_status": res.IngestionStatus}
	if res.IngestionError != "" {
		out["error"] = res.IngestionError
	}
	response.OK(c, out)
}

// PUT /resources/:id
func (h *ResourceHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil || len(patch) == 0 {
		response.ValidationError(c, "body must be a non-empty patch object")
		return
	}
	res, err := h.resources.Patch(reqDB(c), id, patch, h.authority)
	if err != nil {
		response.Error(c, err)
		return
	}
	clone := *res
	clone.ContentText = ""
	response.OK(c, &clone)
}

// DELETE /resources/:id
func (h *ResourceHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.resources.Delete(reqDB(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// POST /resources/:id/reingest
func (h *ResourceHandler) Reingest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	job, err := h.resources.Reingest(reqDB(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"task_id":          job.ID,
		"job_type":         types.JobIngestResource,
		"ingestion_status": types.IngestionPending,
	})
}
