package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/consometers/sge-tiers-proxy/internal/handlers"
)

// Handlers groups the request handlers the router wires up.
type Handlers struct {
	History      *handlers.HistoryHandler
	Subscription *handlers.SubscriptionHandler
	Consent      *handlers.ConsentHandler
}

// SetupRouter configures the gin engine with all routes and middleware.
func SetupRouter(h *Handlers) *gin.Engine {
	router := gin.Default()

	router.Use(requestIDMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/get_history", h.History.GetHistory)
		v1.POST("/subscribe", h.Subscription.Subscribe)
		v1.POST("/unsubscribe", h.Subscription.Unsubscribe)

		v1.POST("/users", h.Consent.RegisterUser)

		consents := v1.Group("/consents")
		{
			consents.POST("", h.Consent.CreateConsent)
			consents.POST("/:id/usage_points", h.Consent.AddUsagePoint)
		}
	}

	return router
}

// requestIDMiddleware tags every request with a correlation id, taken
// from the X-Request-ID header when the client provides one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("requestID", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
