package handler

import (
	"github.com/labstack/echo/v4"

	"chatsync/internal/usecase"
)

var (
	authHandler         *AuthHandler
	userHandler         *UserHandler
	chatHandler         *ChatHandler
	notificationHandler *NotificationHandler
	fileHandler         *FileHandler
	videoHandler        *VideoHandler
	translationHandler  *TranslationHandler
)

// SessionCloser drops the live connections of a user.
type SessionCloser interface {
	DisconnectUser(userID string) int
}

type UseCases struct {
	Auth        *usecase.AuthUseCase
	User        *usecase.UserUseCase
	Chat        *usecase.ChatUseCase
	File        *usecase.FileUseCase
	Video       *usecase.VideoTokenUseCase
	Translation *usecase.TranslationUseCase
}

func Setup(uc UseCases, sessions SessionCloser) {
	authHandler = NewAuthHandler(uc.Auth, sessions)
	userHandler = NewUserHandler(uc.User)
	chatHandler = NewChatHandler(uc.Chat)
	notificationHandler = NewNotificationHandler(uc.Chat)
	fileHandler = NewFileHandler(uc.File)
	videoHandler = NewVideoHandler(uc.Video)
	translationHandler = NewTranslationHandler(uc.Translation)
}

func GetAuthHandler() *AuthHandler {
	return authHandler
}

func GetUserHandler() *UserHandler {
	return userHandler
}

func GetChatHandler() *ChatHandler {
	return chatHandler
}

func GetNotificationHandler() *NotificationHandler {
	return notificationHandler
}

func GetFileHandler() *FileHandler {
	return fileHandler
}

func GetVideoHandler() *VideoHandler {
	return videoHandler
}

func GetTranslationHandler() *TranslationHandler {
	return translationHandler
}

func getUserIDFromContext(c echo.Context) string {
	if uid, ok := c.Get("uid").(string); ok {
		return uid
	}
	return ""
}

func getUserNameFromContext(c echo.Context) string {
	if name, ok := c.Get("name").(string); ok {
		return name
	}
	return ""
}
