package handler

import (
	"github.com/labstack/echo/v4"

	"chatsync/internal/usecase"
	"chatsync/pkg/response"
	"chatsync/pkg/utils"
)

// ChatHandler serves one-shot reads. Live updates go over the WebSocket.
type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

// GetUserChats lists the conversations of the authenticated user, most
// recently updated first.
func (h *ChatHandler) GetUserChats(c echo.Context) error {
	summaries, err := h.chatUseCase.ListConversations(c.Request().Context(), getUserIDFromContext(c))
	if err != nil {
		return response.Error(c, err)
	}

	page := utils.GetPaginationParams(c)
	return response.Paginated(c, utils.Paginate(summaries, page), int64(len(summaries)), page.Page, page.PageSize)
}

// GetChatMessages returns the history with :target without marking it read.
func (h *ChatHandler) GetChatMessages(c echo.Context) error {
	messages, err := h.chatUseCase.GetMessages(c.Request().Context(), getUserIDFromContext(c), c.Param("target"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, messages)
}
