package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"choraid-server/middleware"
	"choraid-server/services"
)

func registerAuthRoutes(r *gin.RouterGroup, h *handler, authn *middleware.Authenticator) {
	r.POST("/register", h.register)
	r.POST("/login", h.login)
	r.POST("/refresh", h.refresh)

	secured := r.Group("")
	secured.Use(authn.AuthMiddleware())
	secured.POST("/logout", h.logout)
	secured.GET("/me", h.me)
	secured.PATCH("/me", h.updateMe)
}

func clientMeta(c *gin.Context, deviceID string) services.ClientMeta {
	return services.ClientMeta{
		DeviceID:  deviceID,
		UserAgent: c.GetHeader("User-Agent"),
		IPAddress: c.ClientIP(),
	}
}

func (h *handler) register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.Auth.Register(c.Request.Context(), req, clientMeta(c, ""))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, res)
}

func (h *handler) login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.Auth.Login(c.Request.Context(), req, clientMeta(c, req.DeviceID))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}

func (h *handler) refresh(c *gin.Context) {
	var req services.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tokens, err := h.Auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, tokens)
}

// logout revokes the given refresh token, or all of the caller's tokens when none is sent
func (h *handler) logout(c *gin.Context) {
	var req services.LogoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if err := h.Auth.Logout(c.Request.Context(), middleware.CurrentProfile(c), req.RefreshToken); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "logged out"})
}

func (h *handler) me(c *gin.Context) {
	respond(c, http.StatusOK, middleware.CurrentProfile(c))
}

func (h *handler) updateMe(c *gin.Context) {
	var req services.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	profile, err := h.Auth.UpdateMe(c.Request.Context(), middleware.CurrentProfile(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, profile)
}
