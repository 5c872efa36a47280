package handler

import (
	"github.com/labstack/echo/v4"

	"chatsync/internal/domain/entity"
	"chatsync/internal/usecase"
	"chatsync/pkg/response"
)

type NotificationHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewNotificationHandler(chatUseCase *usecase.ChatUseCase) *NotificationHandler {
	return &NotificationHandler{
		chatUseCase: chatUseCase,
	}
}

type markNotificationsRequest struct {
	Items []entity.MessageRef `json:"items" validate:"required,min=1,dive"`
}

func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	feed, err := h.chatUseCase.ListNotifications(c.Request().Context(), getUserIDFromContext(c))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, feed)
}

func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	var req markNotificationsRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	n, err := h.chatUseCase.MarkNotificationsRead(c.Request().Context(), getUserIDFromContext(c), req.Items)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]int{"marked": n})
}
