package handler

import (
	"github.com/labstack/echo/v4"

	"chatsync/internal/usecase"
	"chatsync/pkg/errors"
	"chatsync/pkg/logger"
	"chatsync/pkg/response"
)

type FileHandler struct {
	fileUseCase *usecase.FileUseCase
}

func NewFileHandler(fileUseCase *usecase.FileUseCase) *FileHandler {
	return &FileHandler{
		fileUseCase: fileUseCase,
	}
}

// UploadFile stores the multipart "file" field and returns its attachment
// metadata.
func (h *FileHandler) UploadFile(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		logger.Debug("Error getting file from form: %v", err)
		return response.Error(c, errors.BadRequest("Missing or invalid file", err))
	}

	src, err := file.Open()
	if err != nil {
		return response.Error(c, errors.Internal("Unable to read file", err))
	}
	defer src.Close()

	result, err := h.fileUseCase.Upload(c.Request().Context(), file.Filename, src)
	if err != nil {
		logger.Warn("Upload of %s by %s failed: %v", file.Filename, getUserIDFromContext(c), err)
		return response.Error(c, err)
	}

	return response.Success(c, result)
}
