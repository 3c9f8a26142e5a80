package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"choraid-server/middleware"
	"choraid-server/models"
	"choraid-server/services"
)

func registerJobRoutes(r *gin.RouterGroup, h *handler) {
	jobs := r.Group("/jobs")
	{
		jobs.POST("", middleware.RequireRole(models.RoleClient, models.RoleAdmin), h.createJob)
		jobs.GET("", h.listJobs)
		jobs.GET("/:id", h.getJob)
		jobs.POST("/:id/cancel", h.cancelJob)
		jobs.POST("/:id/hire", h.hireWorker)
		jobs.GET("/:id/applications", h.listJobApplications)
	}
}

func (h *handler) createJob(c *gin.Context) {
	var req models.JobCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	job, err := h.Jobs.Create(c.Request.Context(), middleware.CurrentProfile(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, job)
}

// listJobs shows workers open jobs by default; mine=true limits a client to their own
func (h *handler) listJobs(c *gin.Context) {
	actor := middleware.CurrentProfile(c)
	page, limit := pageQuery(c, 100)

	filter := models.JobFilter{
		Status:     models.JobStatus(c.Query("status")),
		CategoryID: queryUint(c, "categoryId"),
		City:       c.Query("city"),
		MinBudget:  queryInt64(c, "minBudget"),
		MaxBudget:  queryInt64(c, "maxBudget"),
		Page:       page,
		Limit:      limit,
	}
	if c.Query("mine") == "true" {
		filter.ClientID = actor.ID
	} else if actor.IsWorker() && filter.Status == "" {
		filter.Status = models.JobStatusOpen
	}

	jobs, total, err := h.Jobs.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, jobs, total, page, limit)
}

func (h *handler) getJob(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	job, count, err := h.Jobs.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": job, "applicationsCount": count})
}

func (h *handler) cancelJob(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	job, err := h.Jobs.Cancel(c.Request.Context(), middleware.CurrentProfile(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, job)
}

func (h *handler) hireWorker(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req services.HireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	booking, err := h.Bookings.Hire(c.Request.Context(), middleware.CurrentProfile(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, booking)
}

func (h *handler) listJobApplications(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	apps, err := h.Applications.ListForJob(c.Request.Context(), middleware.CurrentProfile(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, apps)
}
