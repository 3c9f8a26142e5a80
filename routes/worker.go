package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"choraid-server/middleware"
	"choraid-server/models"
	"choraid-server/services"
	"choraid-server/utils"
)

func registerWorkerRoutes(r *gin.RouterGroup, h *handler) {
	workers := r.Group("/workers")
	{
		workers.GET("", h.listWorkers)
		workers.GET("/leaderboard", h.workerLeaderboard)

		me := workers.Group("/me")
		me.Use(middleware.RequireRole(models.RoleWorker))
		me.GET("", h.myWorkerProfile)
		me.PUT("", h.upsertWorkerProfile)
		me.PATCH("/availability", h.setAvailability)
		me.PATCH("/location", h.updateLocation)
		me.POST("/verification", h.submitVerification)
		me.GET("/activity", h.myActivity)
		me.GET("/stats", h.myStats)

		workers.GET("/:id", h.getWorker)
	}
}

func (h *handler) listWorkers(c *gin.Context) {
	page, limit := pageQuery(c, 100)
	filter := services.WorkerFilter{
		CategoryID:   queryUint(c, "categoryId"),
		Skill:        c.Query("skill"),
		VerifiedOnly: c.Query("verified") == "true",
		Available:    queryBool(c, "available"),
		City:         c.Query("city"),
		Lat:          queryFloat(c, "lat"),
		Lng:          queryFloat(c, "lng"),
		Page:         page,
		Limit:        limit,
	}
	if v := queryFloat(c, "minRating"); v != nil {
		filter.MinRating = *v
	}
	if filter.Lat != nil && filter.Lng != nil {
		radius := utils.GetDefaultSearchRadius()
		if v := queryFloat(c, "radiusKm"); v != nil {
			if !utils.ValidateSearchRadius(*v) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "radiusKm is out of range"})
				return
			}
			radius = *v
		}
		filter.RadiusKm = radius
	}

	workers, total, err := h.Workers.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, workers, total, page, limit)
}

func (h *handler) getWorker(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	worker, err := h.Workers.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, worker)
}

func (h *handler) myWorkerProfile(c *gin.Context) {
	worker, err := h.Workers.GetMine(c.Request.Context(), middleware.CurrentProfile(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, worker)
}

func (h *handler) upsertWorkerProfile(c *gin.Context) {
	var req models.WorkerProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	worker, created, err := h.Workers.UpsertMine(c.Request.Context(), middleware.CurrentProfile(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respond(c, status, worker)
}

func (h *handler) setAvailability(c *gin.Context) {
	var req models.AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	worker, err := h.Workers.SetAvailability(c.Request.Context(), middleware.CurrentProfile(c), *req.IsAvailable)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, worker)
}

func (h *handler) updateLocation(c *gin.Context) {
	var req models.LocationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	worker, err := h.Workers.UpdateLocation(c.Request.Context(), middleware.CurrentProfile(c), req.Lat, req.Lng)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, worker)
}

// submitVerification takes multipart fields id_document and profile_photo
func (h *handler) submitVerification(c *gin.Context) {
	idDoc, err := c.FormFile("id_document")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id_document file is required"})
		return
	}
	photo, err := c.FormFile("profile_photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "profile_photo file is required"})
		return
	}

	worker, err := h.Workers.SubmitVerification(c.Request.Context(), middleware.CurrentProfile(c), services.VerificationFiles{
		IDDocument:   idDoc,
		ProfilePhoto: photo,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, worker)
}

func (h *handler) myActivity(c *gin.Context) {
	page, limit := pageQuery(c, 100)
	items, total, err := h.Workers.Activity(c.Request.Context(), middleware.CurrentProfile(c),
		models.ActivityType(c.Query("type")), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, items, total, page, limit)
}

func (h *handler) myStats(c *gin.Context) {
	summary, err := h.Analytics.Summary(c.Request.Context(), middleware.CurrentProfile(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, summary)
}

func (h *handler) workerLeaderboard(c *gin.Context) {
	board, err := h.Analytics.Leaderboard(c.Request.Context(), queryUint(c, "categoryId"), queryInt(c, "limit", 10))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, board)
}
