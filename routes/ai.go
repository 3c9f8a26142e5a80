package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"choraid-server/middleware"
	"choraid-server/services"
)

func registerAIRoutes(r *gin.RouterGroup, h *handler) {
	ai := r.Group("/ai")
	{
		ai.POST("/rank", h.rankWorkers)
		ai.POST("/tips", h.jobTips)
	}
}

// rankWorkers falls back to the heuristic ranking when no LLM is configured
func (h *handler) rankWorkers(c *gin.Context) {
	var req services.RankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.Matching.Rank(c.Request.Context(), middleware.CurrentProfile(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}

func (h *handler) jobTips(c *gin.Context) {
	var req services.TipsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.Matching.Tips(c.Request.Context(), middleware.CurrentProfile(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}
