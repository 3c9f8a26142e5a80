package routes

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"choraid-server/middleware"
	"choraid-server/services"
)

// maxWebhookBytes matches the payload cap Stripe documents for webhook events
const maxWebhookBytes = 65536

func registerPaymentRoutes(r *gin.RouterGroup, h *handler) {
	r.POST("/payments/intent", h.createPaymentIntent)
}

func (h *handler) createPaymentIntent(c *gin.Context) {
	var req services.PaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.Payments.CreateIntent(c.Request.Context(), middleware.CurrentProfile(c), req.BookingID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, res)
}

func (h *handler) stripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read body"})
		return
	}
	if err := h.Payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
