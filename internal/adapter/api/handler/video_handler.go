package handler

import (
	"github.com/labstack/echo/v4"

	"chatsync/internal/usecase"
	"chatsync/pkg/response"
)

type VideoHandler struct {
	videoUseCase *usecase.VideoTokenUseCase
}

func NewVideoHandler(videoUseCase *usecase.VideoTokenUseCase) *VideoHandler {
	return &VideoHandler{
		videoUseCase: videoUseCase,
	}
}

type videoTokenRequest struct {
	RoomName    string `json:"roomName" validate:"required"`
	DisplayName string `json:"displayName" validate:"required"`
	UserEmail   string `json:"userEmail" validate:"omitempty,email"`
	IsModerator bool   `json:"isModerator"`
}

func (h *VideoHandler) GenerateToken(c echo.Context) error {
	var req videoTokenRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	email := req.UserEmail
	if email == "" {
		email = getUserIDFromContext(c)
	}

	result, err := h.videoUseCase.GenerateToken(usecase.VideoTokenRequest{
		RoomName:    req.RoomName,
		DisplayName: req.DisplayName,
		UserEmail:   email,
		IsModerator: req.IsModerator,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, result)
}
