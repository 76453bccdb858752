package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/neoalexandria/backend/internal/data/repos"
	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/http/response"
	"github.com/neoalexandria/backend/internal/platform/logger"
	"github.com/neoalexandria/backend/internal/services"
)

type CitationHandler struct {
	log       *logger.Logger
	citations *services.CitationService
	jobs      repos.JobRunRepo
}

func NewCitationHandler(log *logger.Logger, citations *services.CitationService, jobs repos.JobRunRepo) *CitationHandler {
	return &CitationHandler{
		log:       log.With("handler", "CitationHandler"),
		citations: citations,
		jobs:      jobs,
	}
}

// GET /citations/resources/:id/citations?direction=both|inbound|outbound
func (h *CitationHandler) ListForResource(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	direction := c.DefaultQuery("direction", "both")
	switch direction {
	case "both", "inbound", "outbound":
	default:
		response.ValidationError(c, "direction must be both, inbound or outbound")
		return
	}
	outbound, inbound, err := h.citations.ListForResource(reqDB(c), id, direction)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := gin.H{}
	if direction != "inbound" {
		if outbound == nil {
			outbound = []*types.Citation{}
		}
		out["outbound"] = outbound
	}
	if direction != "outbound" {
		if inbound == nil {
			inbound = []*types.Citation{}
		}
		out["inbound"] = inbound
	}
	response.OK(c, out)
}

// POST /citations/resolve
func (h *CitationHandler) Resolve(c *gin.Context) {
	job, err := h.jobs.Enqueue(reqDB(c), types.JobCitationResolve, nil, time.Now().UTC(), 3)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"task_id": job.ID, "job_type": job.JobType})
}

// POST /citations/importance/compute
func (h *CitationHandler) ComputeImportance(c *gin.Context) {
	job, err := h.jobs.Enqueue(reqDB(c), types.JobImportanceCompute, nil, time.Now().UTC(), 3)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"task_id": job.ID, "job_type": job.JobType})
}
