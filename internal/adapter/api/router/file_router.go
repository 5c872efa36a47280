package router

import (
	"github.com/labstack/echo/v4"

	"chatsync/internal/adapter/api/handler"
	"chatsync/internal/adapter/api/middleware"
	"chatsync/internal/infrastructure/ratelimit"
)

func SetupFileRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	fileHandler := handler.GetFileHandler()

	// Protected routes - require authentication
	files := e.Group("/v1/files")
	files.Use(authMiddleware.Authenticate)
	files.Use(middleware.RateLimit(limiter, ratelimit.ActionUpload))

	files.POST("", fileHandler.UploadFile)
}
