package routes

import (
	"time"

	"instructly/handlers"
	"instructly/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterPaymentRoutes wires the settlement engine's API surface.
func RegisterPaymentRoutes(r *gin.Engine, ph *handlers.PaymentHandler) {
	api := r.Group("/api/payments")
	{
		api.POST("/:bookingID/authorize", ph.AuthorizeHandler)
		api.POST("/:bookingID/capture", ph.CaptureHandler)
		api.GET("/:bookingID", ph.PaymentStatusHandler)
	}

	admin := r.Group("/api/admin/payments")
	admin.Use(middleware.JWTAuthAdminMiddleware())
	{
		admin.GET("/:bookingID/events", ph.PaymentEventsHandler)
		admin.GET("/review", ph.NeedsReviewHandler)
	}
}

// RegisterWebhookRoutes wires the gateway's asynchronous event delivery.
// No auth middleware here: authenticity is the signature check inside the
// handler, and rate limiting would fight redelivery.
func RegisterWebhookRoutes(r *gin.Engine, wh *handlers.WebhookHandler) {
	r.POST("/api/webhooks/stripe", wh.GatewayWebhookHandler)
}

// CORSMiddleware returns the shared CORS policy for browser clients.
func CORSMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}
