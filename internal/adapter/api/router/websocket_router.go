package router

import (
	"github.com/labstack/echo/v4"

	"chatsync/internal/adapter/api/handler"
)

// SetupWebSocketRouter sets up WebSocket routes
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	// Auth is checked inside the handler, from ?token=
	e.GET("/v1/ws", wsHandler.HandleWebSocket)
}
