package handler

import (
	"github.com/labstack/echo/v4"

	"chatsync/internal/usecase"
	"chatsync/pkg/response"
)

type TranslationHandler struct {
	translationUseCase *usecase.TranslationUseCase
}

func NewTranslationHandler(translationUseCase *usecase.TranslationUseCase) *TranslationHandler {
	return &TranslationHandler{
		translationUseCase: translationUseCase,
	}
}

type translateRequest struct {
	Text           string `json:"text" validate:"required,max=5000"`
	TargetLanguage string `json:"targetLanguage" validate:"required"`
	SourceLanguage string `json:"sourceLanguage"`
}

func (h *TranslationHandler) Translate(c echo.Context) error {
	var req translateRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	result, err := h.translationUseCase.Translate(c.Request().Context(), req.Text, req.TargetLanguage, req.SourceLanguage)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, result)
}

func (h *TranslationHandler) GetLanguages(c echo.Context) error {
	return response.Success(c, h.translationUseCase.SupportedLanguages())
}
