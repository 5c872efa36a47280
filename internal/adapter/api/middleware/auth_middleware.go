package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"chatsync/internal/usecase"
	"chatsync/pkg/errors"
	"chatsync/pkg/response"
)

const (
	ContextUserID   = "uid"
	ContextUserName = "name"
)

type AuthMiddleware struct {
	tokens usecase.TokenVerifier
}

func NewAuthMiddleware(tokens usecase.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
	}
}

// Authenticate requires a valid bearer token and stores the user's email
// under "uid".
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return response.Error(c, errors.Unauthorized("Authorization header is required", nil))
		}

		token, ok := BearerToken(authHeader)
		if !ok {
			return response.Error(c, errors.Unauthorized("Invalid authorization format", nil))
		}

		claims, err := m.tokens.VerifyToken(token)
		if err != nil {
			return response.Error(c, err)
		}

		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextUserName, claims.Name)
		return next(c)
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
