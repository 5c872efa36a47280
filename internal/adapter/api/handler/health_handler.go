package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// ConnectionCounter reports how many live connections are open.
type ConnectionCounter interface {
	Count() int
}

type HealthHandler struct {
	storeDriver string
	connections ConnectionCounter
}

var healthHandler *HealthHandler

func NewHealthHandler(storeDriver string, connections ConnectionCounter) *HealthHandler {
	return &HealthHandler{
		storeDriver: storeDriver,
		connections: connections,
	}
}

func SetupHealthHandler(storeDriver string, connections ConnectionCounter) {
	healthHandler = NewHealthHandler(storeDriver, connections)
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	body := map[string]interface{}{
		"status": "Server is running",
		"time":   time.Now().Format(time.RFC3339),
		"store":  h.storeDriver,
	}
	if h.connections != nil {
		body["connections"] = h.connections.Count()
	}
	return c.JSON(http.StatusOK, body)
}
