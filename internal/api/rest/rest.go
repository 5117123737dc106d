package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/lootview/wallet-portfolio/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Position endpoints (public read access)
		v1.GET("/wallets/:address/positions", handler.GetPortfolio)
		v1.GET("/wallets/:address/position", handler.GetPosition)

		// Cache invalidation (requires authentication)
		v1.DELETE("/wallets/:address/position", middleware.Auth(authCfg), handler.InvalidatePosition)

		// Reconciliation journal (requires authentication)
		v1.GET("/journal", middleware.Auth(authCfg), handler.GetJournal)
	}
}
