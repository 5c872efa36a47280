package handler

import (
	"github.com/labstack/echo/v4"

	"chatsync/internal/usecase"
	"chatsync/pkg/response"
	"chatsync/pkg/utils"
)

type UserHandler struct {
	userUseCase *usecase.UserUseCase
}

func NewUserHandler(userUseCase *usecase.UserUseCase) *UserHandler {
	return &UserHandler{
		userUseCase: userUseCase,
	}
}

type updateStatusRequest struct {
	Email  string `json:"email" validate:"required,email"`
	Status string `json:"status" validate:"required,oneof=online offline away"`
}

func (h *UserHandler) ListUsers(c echo.Context) error {
	users, err := h.userUseCase.ListUsers(c.Request().Context())
	if err != nil {
		return response.Error(c, err)
	}

	items := make([]userResponse, 0, len(users))
	for _, user := range users {
		items = append(items, toUserResponse(user))
	}

	page := utils.GetPaginationParams(c)
	return response.Paginated(c, utils.Paginate(items, page), int64(len(items)), page.Page, page.PageSize)
}

func (h *UserHandler) GetProfile(c echo.Context) error {
	user, err := h.userUseCase.GetUserProfile(c.Request().Context(), c.Param("email"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, toUserResponse(user))
}

func (h *UserHandler) UpdateStatus(c echo.Context) error {
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	user, err := h.userUseCase.UpdateStatus(c.Request().Context(), getUserIDFromContext(c), req.Email, req.Status)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, toUserResponse(user))
}
