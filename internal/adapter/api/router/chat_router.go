package router

import (
	"github.com/labstack/echo/v4"

	"chatsync/internal/adapter/api/handler"
	"chatsync/internal/adapter/api/middleware"
)

// SetupChatRouter sets up the read-only chat routes. Sending and reading
// happen over the WebSocket.
func SetupChatRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	chatHandler := handler.GetChatHandler()

	chatGroup := e.Group("/v1/chats")
	chatGroup.Use(authMiddleware.Authenticate)

	chatGroup.GET("", chatHandler.GetUserChats)                    // GET /v1/chats
	chatGroup.GET("/:target/messages", chatHandler.GetChatMessages) // GET /v1/chats/:target/messages
}
