package router

import (
	"github.com/labstack/echo/v4"

	"chatsync/internal/adapter/api/handler"
	"chatsync/internal/adapter/api/middleware"
)

func SetupVideoRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	videoHandler := handler.GetVideoHandler()

	jaas := e.Group("/v1/jaas")
	jaas.Use(authMiddleware.Authenticate)

	jaas.POST("/token", videoHandler.GenerateToken)
}
