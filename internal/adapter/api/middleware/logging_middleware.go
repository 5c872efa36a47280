package middleware

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"chatsync/pkg/logger"
	"chatsync/pkg/metrics"
)

const CorrelationIDHeader = "X-Correlation-ID"

// RequestLogger logs every request with a correlation id and records its
// duration and status.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			correlationID := c.Request().Header.Get(CorrelationIDHeader)
			if correlationID == "" {
				correlationID = uuid.New().String()
			}
			c.Response().Header().Set(CorrelationIDHeader, correlationID)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			duration := time.Since(start)
			status := c.Response().Status
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}

			userID, _ := c.Get(ContextUserID).(string)
			logger.With(
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", status,
				"bytes", c.Response().Size,
				"duration", duration,
				"correlation_id", correlationID,
				"user_id", userID,
				"remote_addr", c.RealIP(),
			).Info("request completed")

			metrics.RecordRequest(c.Request().Method, path, strconv.Itoa(status), duration.Seconds())
			return nil
		}
	}
}
