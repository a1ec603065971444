package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"atelier-service/internal/service"
	"atelier-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services groups the business services the handlers call
type Services struct {
	Auth     *service.AuthService
	Catalog  *service.CatalogService
	Cart     *service.CartService
	Orders   *service.OrderService
	Payments *service.PaymentService
	Chatbot  *service.ChatbotService
	Admin    *service.AdminService
}

// ReadyCheck reports whether a dependency is reachable
type ReadyCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	Services
	corsOrigin string
	checks     map[string]ReadyCheck
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(services Services, corsOrigin string, checks map[string]ReadyCheck) *Handler {
	RegisterValidators()
	return &Handler{
		Services:   services,
		corsOrigin: corsOrigin,
		checks:     checks,
		logger:     util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	router.Use(corsMiddleware(h.corsOrigin))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.register)
		auth.POST("/login", h.login)
		auth.POST("/refresh", h.refresh)
		auth.POST("/logout", h.logout)
		auth.POST("/forgot-password", h.forgotPassword)
		auth.POST("/reset-password", h.resetPassword)
		auth.GET("/me", h.AuthRequired(), h.getProfile)
		auth.GET("/profile", h.AuthRequired(), h.getProfile)
		auth.PUT("/profile", h.AuthRequired(), h.updateProfile)
	}

	users := api.Group("/users", h.AuthRequired())
	{
		users.GET("/profile", h.getProfile)
		users.PUT("/profile", h.updateProfile)
		users.PUT("/change-password", h.changePassword)
		users.GET("/wishlist", h.getWishlist)
		users.POST("/wishlist/:productId", h.addToWishlist)
		users.DELETE("/wishlist/:productId", h.removeFromWishlist)
	}

	products := api.Group("/products")
	{
		products.GET("", h.listProducts)
		products.GET("/featured", h.curatedProducts(service.ListFeatured))
		products.GET("/new", h.curatedProducts(service.ListNew))
		products.GET("/sale", h.curatedProducts(service.ListSale))
		products.GET("/:id", h.getProduct)
		products.POST("/:id/reviews", h.AuthRequired(), h.addReview)
	}

	categories := api.Group("/categories")
	{
		categories.GET("", h.listCategories)
		categories.GET("/tree", h.categoryTree)
		categories.GET("/:id", h.getCategory)
	}

	cart := api.Group("/cart", h.AuthRequired())
	{
		cart.GET("", h.getCart)
		cart.POST("/items", h.addCartItem)
		cart.PUT("/items/:itemId", h.updateCartItem)
		cart.DELETE("/items/:itemId", h.removeCartItem)
		cart.DELETE("", h.clearCart)
		cart.POST("/merge", h.mergeCart)
	}

	guestCart := api.Group("/guest-cart", requireGuestID())
	{
		guestCart.GET("", h.getCart)
		guestCart.POST("/items", h.addCartItem)
		guestCart.PUT("/items/:itemId", h.updateCartItem)
		guestCart.DELETE("/items/:itemId", h.removeCartItem)
		guestCart.DELETE("", h.clearCart)
	}

	orders := api.Group("/orders", h.AuthRequired())
	{
		orders.POST("", h.createOrder)
		orders.GET("/my-orders", h.listMyOrders)
		orders.GET("/:id", h.getOrder)
		orders.POST("/:id/cancel", h.cancelOrder)
	}

	payment := api.Group("/payment", h.AuthRequired())
	{
		payment.POST("/:orderId/qr", h.generateQR)
		payment.GET("/:orderId/qr.png", h.qrImage)
		payment.GET("/:orderId/status", h.paymentStatus)
		payment.POST("/:orderId/verify", RequireAdmin(), h.verifyPayment)
	}

	chatbot := api.Group("/chatbot", h.OptionalAuth())
	{
		chatbot.POST("/start", h.startChat)
		chatbot.POST("/message", h.sendChatMessage)
		chatbot.GET("/history", h.chatHistory)
		chatbot.POST("/end", h.endChat)
	}

	admin := api.Group("/admin", h.AuthRequired(), RequireAdmin())
	{
		admin.GET("/dashboard", h.dashboard)

		admin.GET("/products", h.adminListProducts)
		admin.GET("/products/:id", h.adminGetProduct)
		admin.POST("/products", h.createProduct)
		admin.PUT("/products/:id", h.updateProduct)
		admin.DELETE("/products/:id", h.deleteProduct)

		admin.GET("/categories", h.adminListCategories)
		admin.POST("/categories", h.createCategory)
		admin.PUT("/categories/:id", h.updateCategory)
		admin.DELETE("/categories/:id", h.deleteCategory)

		admin.GET("/users", h.listUsers)
		admin.PUT("/users/:id", h.updateUser)
		admin.DELETE("/users/:id", h.deleteUser)

		admin.GET("/orders", h.adminListOrders)
		admin.GET("/orders/:id", h.getOrder)
		admin.PUT("/orders/:id/status", h.updateOrderStatus)

		admin.GET("/settings", h.listSettings)
		admin.PUT("/settings/:key", h.upsertSetting)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency and reports 503 when one is down
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"dependencies": deps,
		"time":         time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

func corsMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, "+headerGuestID+", "+headerIdempotencyKey)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
