package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/adapter/repository"
	"chatsync/internal/domain/entity"
	"chatsync/internal/infrastructure/ratelimit"
	"chatsync/internal/usecase"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Token abc", "", false},
		{"Bearer a b", "", false},
	}

	for _, tt := range tests {
		token, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}

func TestAuthenticate(t *testing.T) {
	auth := usecase.NewAuthUseCase(repository.NewMemoryUserRepository(), "test-secret", time.Hour)
	token, err := auth.IssueToken(&entity.User{Email: "alice@x.com", Name: "Alice"})
	require.NoError(t, err)

	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get(ContextUserID).(string)+"|"+c.Get(ContextUserName).(string))
	}, NewAuthMiddleware(auth).Authenticate)

	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set(echo.HeaderAuthorization, header)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := call("Bearer " + token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice@x.com|Alice", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, call("").Code)
	assert.Equal(t, http.StatusUnauthorized, call(token).Code)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer garbage").Code)
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewRateLimiterWithPolicies(map[string]ratelimit.Policy{
		ratelimit.ActionAuth: {Burst: 2, Every: time.Hour},
	})

	e := echo.New()
	e.POST("/login", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, AuthRateLimit(limiter))

	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.Header.Set(echo.HeaderXRealIP, ip)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1").Code)
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1").Code)

	rec := call("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, call("10.0.0.2").Code)
}

func TestRequestLogger_CorrelationID(t *testing.T) {
	e := echo.New()
	e.Use(RequestLogger())
	e.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})
	e.GET("/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(CorrelationIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(CorrelationIDHeader))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Len(t, rec.Header().Get(CorrelationIDHeader), 36)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
