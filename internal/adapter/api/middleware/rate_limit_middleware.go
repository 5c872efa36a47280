package middleware

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"

	"chatsync/internal/infrastructure/ratelimit"
	"chatsync/pkg/errors"
	"chatsync/pkg/logger"
	"chatsync/pkg/response"
)

// RateLimit limits requests per client IP for action.
func RateLimit(limiter *ratelimit.RateLimiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()

			if ok, wait := limiter.Allow("ip:"+ip, action); !ok {
				retryAfter := int(math.Ceil(wait.Seconds()))
				logger.Warn("RATE LIMIT: Blocked %s from IP %s (retry in %ds)", action, ip, retryAfter)

				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				return response.Error(c, errors.TooManyRequests("Rate limit exceeded", nil))
			}

			return next(c)
		}
	}
}

// AuthRateLimit guards the login and registration endpoints.
func AuthRateLimit(limiter *ratelimit.RateLimiter) echo.MiddlewareFunc {
	return RateLimit(limiter, ratelimit.ActionAuth)
}
