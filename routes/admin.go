package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"choraid-server/middleware"
	"choraid-server/models"
	"choraid-server/services"
)

func registerAdminRoutes(r *gin.RouterGroup, h *handler) {
	r.GET("/workers", h.adminListWorkers)
	r.PATCH("/workers/:id/verify", h.adminVerifyWorker)
	r.PATCH("/profiles/:id/active", h.adminSetProfileActive)
	r.GET("/stats", h.adminStats)
}

func (h *handler) adminListWorkers(c *gin.Context) {
	page, limit := pageQuery(c, 100)
	workers, total, err := h.Admin.ListWorkers(c.Request.Context(), models.VerificationStatus(c.Query("status")), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, workers, total, page, limit)
}

func (h *handler) adminVerifyWorker(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req services.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	worker, err := h.Admin.VerifyWorker(c.Request.Context(), middleware.CurrentProfile(c), id, *req.Approve, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, worker)
}

func (h *handler) adminSetProfileActive(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req services.ActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	profile, err := h.Admin.SetProfileActive(c.Request.Context(), middleware.CurrentProfile(c), id, *req.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, profile)
}

func (h *handler) adminStats(c *gin.Context) {
	stats, err := h.Admin.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, stats)
}
