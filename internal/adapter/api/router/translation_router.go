package router

import (
	"github.com/labstack/echo/v4"

	"chatsync/internal/adapter/api/handler"
	"chatsync/internal/adapter/api/middleware"
)

func SetupTranslationRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	translationHandler := handler.GetTranslationHandler()

	e.GET("/v1/translate/languages", translationHandler.GetLanguages)
	e.POST("/v1/translate", translationHandler.Translate, authMiddleware.Authenticate)
}
