// Package app wires shared HTTP routes for both local and Lambda execution.
package app

import (
	"time"

	"github.com/adityadaniel/flora-friend/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter() (*gin.Engine, error) {
	router := gin.Default()
	router.MaxMultipartMemory = maxImageBytes
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", auth.DeviceIDHeader},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", Health)
	router.POST("/api/stripe/webhook", StripeWebhook)

	verifier, err := auth.NewVerifierFromEnv()
	if err != nil && !auth.AuthDisabled() {
		return nil, err
	}

	protected := router.Group("/")
	protected.Use(auth.Middleware(verifier, auth.MiddlewareConfig{
		OnAuthenticated: func(c *gin.Context, claims *auth.Claims) error {
			return UpsertUserFromClaims(c.Request.Context(), claims)
		},
	}))
	protected.GET("/me", Me)
	protected.POST("/entitlement/refresh", RefreshEntitlement)

	protected.POST("/identify", IdentifyPlant)
	protected.POST("/identify/jobs", CreateIdentifyJob)
	protected.GET("/jobs/:jobid", GetJobStatus)

	protected.GET("/plants", ListPlants)
	protected.GET("/plants/:id", GetPlant)
	protected.GET("/plants/:id/image", GetPlantImage)
	protected.DELETE("/plants/:id", DeletePlant)
	protected.GET("/plants/:id/chat", GetChat)
	protected.POST("/plants/:id/chat", PostChatMessage)
	protected.GET("/plants/:id/chat/ws", ChatWebSocket)

	protected.GET("/api/billing/offerings", GetOfferings)
	protected.POST("/api/billing/purchase", CreateCheckoutSession)
	protected.POST("/api/billing/restore", RestorePurchases)
	protected.POST("/api/billing/portal-session", CreatePortalSession)

	return router, nil
}
