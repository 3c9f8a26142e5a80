package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"choraid-server/middleware"
	"choraid-server/models"
	"choraid-server/services"
)

func registerBookingRoutes(r *gin.RouterGroup, h *handler) {
	bookings := r.Group("/bookings")
	{
		bookings.GET("", h.listBookings)
		bookings.GET("/:id", h.getBooking)
		bookings.POST("/:id/start", h.startBooking)
		bookings.POST("/:id/complete", h.completeBooking)
		bookings.POST("/:id/cancel", h.cancelBooking)
	}
}

func (h *handler) listBookings(c *gin.Context) {
	page, limit := pageQuery(c, 100)
	bookings, total, err := h.Bookings.List(c.Request.Context(), middleware.CurrentProfile(c),
		models.BookingStatus(c.Query("status")), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, bookings, total, page, limit)
}

func (h *handler) getBooking(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	booking, err := h.Bookings.Get(c.Request.Context(), middleware.CurrentProfile(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, booking)
}

func (h *handler) startBooking(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	booking, err := h.Bookings.Start(c.Request.Context(), middleware.CurrentProfile(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, booking)
}

func (h *handler) completeBooking(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	booking, err := h.Bookings.Complete(c.Request.Context(), middleware.CurrentProfile(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, booking)
}

func (h *handler) cancelBooking(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req services.CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	booking, err := h.Bookings.Cancel(c.Request.Context(), middleware.CurrentProfile(c), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, booking)
}
