package usecase

import (
	"context"
	"sync"

	"chatsync/internal/domain/repository"
	"chatsync/internal/infrastructure/ratelimit"
)

// SessionObserver receives every state change of a UserSession. Calls may
// come from different goroutines and must not block on the session.
type SessionObserver interface {
	ChatStateChanged(state ChatSessionState)
	ChatListChanged(summaries []ConversationSummary)
	NotificationsChanged(feed NotificationFeed)
	SessionError(stage string, err error)
}

type SessionConfig struct {
	Chat          ChatSessionConfig
	Notifications NotificationConfig
}

// UserSession bundles the live views of one authenticated connection. It is
// created when the connection is accepted and closed when it goes away.
type UserSession struct {
	UserID        string
	Chat          *ChatSession
	List          *ChatList
	Notifications *NotificationAggregator

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func NewUserSession(parent context.Context, repo repository.ChatRepository, limiter *ratelimit.RateLimiter, userID string, cfg SessionConfig, observer SessionObserver) *UserSession {
	ctx, cancel := context.WithCancel(parent)
	return &UserSession{
		UserID:        userID,
		Chat:          NewChatSession(ctx, repo, limiter, userID, cfg.Chat, observer.ChatStateChanged),
		List:          NewChatList(ctx, repo, userID, observer.ChatListChanged, func(err error) { observer.SessionError("chat_list", err) }),
		Notifications: NewNotificationAggregator(repo, userID, cfg.Notifications, observer.NotificationsChanged),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start begins the conversation list subscription and notification polling.
func (s *UserSession) Start() error {
	if err := s.List.Start(); err != nil {
		return err
	}
	s.Notifications.Start(s.ctx)
	return nil
}

// Close stops every view. Safe to call more than once.
func (s *UserSession) Close() {
	s.closeOnce.Do(func() {
		s.Chat.Shutdown()
		s.List.Stop()
		s.Notifications.Stop()
		s.cancel()
	})
}
