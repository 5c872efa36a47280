package handler

import (
	"github.com/labstack/echo/v4"

	"chatsync/internal/domain/entity"
	"chatsync/internal/usecase"
	"chatsync/pkg/logger"
	"chatsync/pkg/response"
)

type AuthHandler struct {
	authUseCase *usecase.AuthUseCase
	sessions    SessionCloser
}

func NewAuthHandler(authUseCase *usecase.AuthUseCase, sessions SessionCloser) *AuthHandler {
	return &AuthHandler{
		authUseCase: authUseCase,
		sessions:    sessions,
	}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

type loginResponse struct {
	userResponse
	Token string `json:"token"`
}

func toUserResponse(user *entity.User) userResponse {
	return userResponse{
		ID:     user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Status: user.Status,
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	user, err := h.authUseCase.Register(c.Request().Context(), usecase.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, toUserResponse(user))
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	result, err := h.authUseCase.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, loginResponse{
		userResponse: toUserResponse(result.User),
		Token:        result.Token,
	})
}

// Logout marks the user offline and drops their live connections.
func (h *AuthHandler) Logout(c echo.Context) error {
	uid := getUserIDFromContext(c)

	if err := h.authUseCase.Logout(c.Request().Context(), uid); err != nil {
		return response.Error(c, err)
	}

	if h.sessions != nil {
		if n := h.sessions.DisconnectUser(uid); n > 0 {
			logger.Info("Closed %d live connection(s) of %s on logout", n, uid)
		}
	}

	return response.Success(c, map[string]string{
		"message": "Successfully logged out",
	})
}
