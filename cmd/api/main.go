package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"chatsync/internal/adapter/api"
	"chatsync/internal/adapter/api/handler"
	apimiddleware "chatsync/internal/adapter/api/middleware"
	"chatsync/internal/adapter/api/router"
	"chatsync/internal/adapter/repository"
	domainrepo "chatsync/internal/domain/repository"
	"chatsync/internal/domain/service"
	"chatsync/internal/infrastructure/firebase"
	"chatsync/internal/infrastructure/ratelimit"
	"chatsync/internal/infrastructure/storage"
	"chatsync/internal/infrastructure/websocket"
	"chatsync/internal/usecase"
	"chatsync/pkg/config"
	"chatsync/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}
	logger.Init(cfg.LogLevel, cfg.Environment)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		chatRepo    domainrepo.ChatRepository
		userRepo    domainrepo.UserRepository
		fileStorage service.FileStorage
	)

	if cfg.StoreDriver == config.StoreDriverFirestore || cfg.StorageBucket != "" {
		clients, err := firebase.NewClients(ctx, cfg)
		if err != nil {
			logger.Fatal("Failed to initialize Firebase: %v", err)
		}
		defer clients.Close()

		if cfg.StoreDriver == config.StoreDriverFirestore {
			chatRepo = repository.NewFirestoreChatRepository(clients.Firestore)
			userRepo = repository.NewFirestoreUserRepository(clients.Firestore)
		}

		if clients.Bucket != nil {
			storageClient := storage.NewCloudStorageClient(clients.Bucket, cfg.StorageBucket, true)
			if err := storageClient.EnsureCORS(ctx); err != nil {
				logger.Warn("Failed to configure bucket CORS: %v", err)
			}
			fileStorage = storageClient
		}
	}

	if chatRepo == nil {
		logger.Info("Using in-memory store; data is lost on restart")
		chatRepo = repository.NewMemoryChatRepository()
		userRepo = repository.NewMemoryUserRepository()
	}
	if fileStorage == nil {
		logger.Warn("STORAGE_BUCKET not set, file uploads are disabled")
	}

	limiter := ratelimit.NewRateLimiter()
	limiter.StartCleanupRoutine(ctx)

	authUseCase := usecase.NewAuthUseCase(userRepo, cfg.JWTSecret, time.Duration(cfg.JWTExpiry)*time.Second)
	userUseCase := usecase.NewUserUseCase(userRepo)
	chatUseCase := usecase.NewChatUseCase(chatRepo, limiter, usecase.SessionConfig{
		Chat: usecase.ChatSessionConfig{
			CreateTimeout: cfg.ChatCreateTimeout,
			LoadTimeout:   cfg.ChatLoadTimeout,
		},
		Notifications: usecase.NotificationConfig{
			PollInterval:     cfg.NotificationPollInterval,
			FetchConcurrency: cfg.NotificationFetchConcurrency,
		},
	})
	fileUseCase := usecase.NewFileUseCase(fileStorage, cfg.UploadMaxBytes)
	translationUseCase := usecase.NewTranslationUseCase()
	videoUseCase, err := usecase.NewVideoTokenUseCase(cfg.JaaSAppID, cfg.JaaSKeyID, cfg.JaaSPrivateKeyPath, cfg.JaaSDomain)
	if err != nil {
		logger.Fatal("Failed to initialize JaaS: %v", err)
	}

	wsManager := websocket.NewManager(func(userID string, online bool) {
		presenceCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		userUseCase.SetPresence(presenceCtx, userID, online)
	})
	wsManager.Start(ctx)

	handler.Setup(handler.UseCases{
		Auth:        authUseCase,
		User:        userUseCase,
		Chat:        chatUseCase,
		File:        fileUseCase,
		Video:       videoUseCase,
		Translation: translationUseCase,
	}, wsManager)
	handler.SetupHealthHandler(cfg.StoreDriver, wsManager)

	e := echo.New()
	e.HideBanner = true

	e.Use(apimiddleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit("12M"))

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(authUseCase)
	wsHandler := handler.NewWebSocketHandler(ctx, wsManager, authUseCase, chatUseCase)

	router.Setup(e, authMiddleware, limiter, wsHandler)

	go func() {
		logger.Info("Starting server on port %s...", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}
}
