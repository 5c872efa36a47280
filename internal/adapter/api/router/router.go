package router

import (
	"github.com/labstack/echo/v4"

	"chatsync/internal/adapter/api/handler"
	"chatsync/internal/adapter/api/middleware"
	"chatsync/internal/infrastructure/ratelimit"
)

func Setup(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter, wsHandler *handler.WebSocketHandler) {
	SetupAuthRouter(e, authMiddleware, limiter)
	SetupUserRouter(e, authMiddleware)
	SetupChatRouter(e, authMiddleware)
	SetupNotificationRouter(e, authMiddleware)
	SetupFileRouter(e, authMiddleware, limiter)
	SetupVideoRouter(e, authMiddleware)
	SetupTranslationRouter(e, authMiddleware)
	SetupWebSocketRouter(e, wsHandler)
	SetupHealthRouter(e)
}
