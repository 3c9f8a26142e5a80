package routes

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"gorm.io/gorm"

	"choraid-server/middleware"
	"choraid-server/models"
	"choraid-server/services"
	ws "choraid-server/websocket"
)

// maxBodyBytes covers two 5MB verification images plus form overhead
const maxBodyBytes = 11 << 20

// Deps are the collaborators the HTTP layer needs
type Deps struct {
	DB            *gorm.DB
	Auth          *services.AuthService
	JWT           *services.JWTService
	Verifier      services.IdentityVerifier
	Jobs          *services.JobService
	Applications  *services.ApplicationService
	Bookings      *services.BookingService
	Payments      *services.PaymentService
	Reviews       *services.ReviewService
	Workers       *services.WorkerService
	Analytics     *services.WorkerAnalyticsService
	Matching      *services.MatchingService
	Notifications *services.NotificationService
	Admin         *services.AdminService
	Hub           *ws.Hub
	RateLimiter   *middleware.RateLimiter
	CORSOrigins   []string
}

type handler struct {
	Deps
	upgrader *gorillaws.Upgrader
}

// NewRouter builds the engine with every /api/v1 route
func NewRouter(d Deps) *gin.Engine {
	h := &handler{Deps: d, upgrader: ws.NewUpgrader(d.CORSOrigins)}
	authn := middleware.NewAuthenticator(d.Auth, d.JWT, d.Verifier)
	if h.RateLimiter == nil {
		h.RateLimiter = middleware.NewRateLimiter()
	}
	if h.Hub != nil {
		h.Hub.Handle("mark_read", h.wsMarkRead)
	}

	router := gin.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(d.CORSOrigins))
	router.Use(middleware.InputValidationMiddleware(maxBodyBytes))
	router.Use(h.RateLimiter.RateLimitMiddleware())
	router.Use(middleware.AuditLogMiddleware())

	api := router.Group("/api/v1")
	api.GET("/health", h.health)

	authRoutes := api.Group("/auth")
	authRoutes.Use(h.RateLimiter.AuthRateLimitMiddleware())
	registerAuthRoutes(authRoutes, h, authn)

	api.GET("/categories", authn.OptionalAuthMiddleware(), h.listCategories)

	// Stripe calls this without a bearer token; the payload signature authenticates it
	api.POST("/payments/webhook", h.stripeWebhook)

	api.GET("/ws", authn.WebSocketAuthMiddleware(), h.serveWS)

	protected := api.Group("")
	protected.Use(authn.AuthMiddleware())
	{
		registerJobRoutes(protected, h)
		registerApplicationRoutes(protected, h)
		registerBookingRoutes(protected, h)
		registerPaymentRoutes(protected, h)
		registerReviewRoutes(protected, h)
		registerWorkerRoutes(protected, h)
		registerAIRoutes(protected, h)
		registerNotificationRoutes(protected, h)

		admin := protected.Group("/admin")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		registerAdminRoutes(admin, h)
	}

	return router
}

func (h *handler) health(c *gin.Context) {
	status := http.StatusOK
	dbStatus := "ok"
	if sqlDB, err := h.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		status = http.StatusServiceUnavailable
		dbStatus = "unavailable"
	}

	c.JSON(status, gin.H{
		"status":   http.StatusText(status),
		"database": dbStatus,
		"payments": h.Payments != nil && h.Payments.Enabled(),
		"ai":       h.Matching != nil && h.Matching.Provider() != "",
		"time":     time.Now().UTC(),
	})
}

// listCategories is public; signed-in admins may add includeInactive=true
func (h *handler) listCategories(c *gin.Context) {
	q := h.DB.WithContext(c.Request.Context())
	p := middleware.CurrentProfile(c)
	if c.Query("includeInactive") != "true" || p == nil || !p.IsAdmin() {
		q = q.Where("is_active = ?", true)
	}
	var categories []models.Category
	if err := q.Order("sort_order ASC, name ASC").Find(&categories).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": categories})
}

// respondError maps service errors to status codes
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden), errors.Is(err, services.ErrNotWorker), errors.Is(err, services.ErrNotClient):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, services.ErrUpstream):
		status = http.StatusBadGateway
	case errors.Is(err, services.ErrDisabled):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		log.Printf("❌ %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
}

// paramID parses a positive :name path parameter, answering 400 otherwise
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

func queryInt64(c *gin.Context, key string) int64 {
	v, _ := strconv.ParseInt(c.Query(key), 10, 64)
	return v
}

func queryUint(c *gin.Context, key string) uint {
	v, _ := strconv.ParseUint(c.Query(key), 10, 64)
	return uint(v)
}

func queryFloat(c *gin.Context, key string) *float64 {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func queryBool(c *gin.Context, key string) *bool {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

// pageQuery reads page and limit, defaulting to the first page of 20
func pageQuery(c *gin.Context, maxLimit int) (int, int) {
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := queryInt(c, "limit", 20)
	if limit < 1 || limit > maxLimit {
		limit = 20
	}
	return page, limit
}

func paginated(c *gin.Context, data any, total int64, page, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}
