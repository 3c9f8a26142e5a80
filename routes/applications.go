package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"choraid-server/middleware"
	"choraid-server/models"
)

func registerApplicationRoutes(r *gin.RouterGroup, h *handler) {
	apps := r.Group("/applications")
	{
		apps.POST("", h.apply)
		apps.GET("/mine", h.myApplications)
		apps.POST("/:id/accept", h.acceptApplication)
		apps.POST("/:id/reject", h.rejectApplication)
		apps.POST("/:id/withdraw", h.withdrawApplication)
	}
}

func (h *handler) apply(c *gin.Context) {
	var req models.ApplicationCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	app, err := h.Applications.Apply(c.Request.Context(), middleware.CurrentProfile(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, app)
}

func (h *handler) myApplications(c *gin.Context) {
	apps, err := h.Applications.ListMine(c.Request.Context(), middleware.CurrentProfile(c), models.ApplicationStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, apps)
}

func (h *handler) acceptApplication(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	booking, err := h.Applications.Accept(c.Request.Context(), middleware.CurrentProfile(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, booking)
}

func (h *handler) rejectApplication(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	app, err := h.Applications.Reject(c.Request.Context(), middleware.CurrentProfile(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, app)
}

func (h *handler) withdrawApplication(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	app, err := h.Applications.Withdraw(c.Request.Context(), middleware.CurrentProfile(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, app)
}
