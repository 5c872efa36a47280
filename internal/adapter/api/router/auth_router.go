package router

import (
	"github.com/labstack/echo/v4"

	"chatsync/internal/adapter/api/handler"
	"chatsync/internal/adapter/api/middleware"
	"chatsync/internal/infrastructure/ratelimit"
)

// SetupAuthRouter initializes auth routes
func SetupAuthRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	authHandler := handler.GetAuthHandler()

	// Public routes
	public := e.Group("/v1/auth")
	public.Use(middleware.AuthRateLimit(limiter))

	public.POST("/register", authHandler.Register)
	public.POST("/login", authHandler.Login)

	// Protected routes
	protected := e.Group("/v1/auth")
	protected.Use(authMiddleware.Authenticate)

	protected.POST("/logout", authHandler.Logout)
}
