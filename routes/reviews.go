package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"choraid-server/middleware"
	"choraid-server/models"
)

func registerReviewRoutes(r *gin.RouterGroup, h *handler) {
	r.POST("/reviews", middleware.RequireRole(models.RoleClient), h.createReview)
	r.GET("/workers/:id/reviews", h.workerReviews)
}

func (h *handler) createReview(c *gin.Context) {
	var req models.ReviewCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	review, err := h.Reviews.Create(c.Request.Context(), middleware.CurrentProfile(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, review)
}

func (h *handler) workerReviews(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	page, limit := pageQuery(c, 50)
	reviews, summary, err := h.Reviews.ListForWorker(c.Request.Context(), id, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    reviews,
		"summary": summary,
		"page":    page,
		"limit":   limit,
	})
}
