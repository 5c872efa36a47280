package usecase

import (
	"context"
	"strings"

	"chatsync/internal/domain/entity"
	"chatsync/internal/domain/repository"
	"chatsync/internal/infrastructure/ratelimit"
	"chatsync/pkg/errors"
	"chatsync/pkg/logger"
)

// ChatUseCase is the entry point for chat features: it creates live
// sessions for WebSocket connections and serves one-shot reads over HTTP.
type ChatUseCase struct {
	chatRepo    repository.ChatRepository
	rateLimiter *ratelimit.RateLimiter
	cfg         SessionConfig
}

func NewChatUseCase(chatRepo repository.ChatRepository, rateLimiter *ratelimit.RateLimiter, cfg SessionConfig) *ChatUseCase {
	return &ChatUseCase{
		chatRepo:    chatRepo,
		rateLimiter: rateLimiter,
		cfg:         cfg,
	}
}

// StartSession builds and starts the live views for one connection of
// userID. The caller owns the session and must Close it.
func (uc *ChatUseCase) StartSession(ctx context.Context, userID string, observer SessionObserver) (*UserSession, error) {
	session := NewUserSession(ctx, uc.chatRepo, uc.rateLimiter, userID, uc.cfg, observer)
	if err := session.Start(); err != nil {
		session.Close()
		return nil, err
	}
	logger.Debug("Started session for %s", userID)
	return session, nil
}

func (uc *ChatUseCase) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	return CollectConversationSummaries(ctx, uc.chatRepo, userID, uc.cfg.Notifications.FetchConcurrency)
}

// GetMessages returns the history between userID and target without
// marking anything read.
func (uc *ChatUseCase) GetMessages(ctx context.Context, userID, target string) ([]*entity.Message, error) {
	id, err := ConversationID(userID, target)
	if err != nil {
		return nil, err
	}

	if _, err := uc.chatRepo.GetConversation(ctx, id); err != nil {
		return nil, err
	}
	return uc.chatRepo.ListMessages(ctx, id)
}

func (uc *ChatUseCase) ListNotifications(ctx context.Context, userID string) (NotificationFeed, error) {
	notifications, err := CollectNotifications(ctx, uc.chatRepo, userID, uc.cfg.Notifications.FetchConcurrency)
	if err != nil {
		return NotificationFeed{}, err
	}
	return NotificationFeed{Notifications: notifications, UnreadCount: len(notifications)}, nil
}

// MarkNotificationsRead marks the referenced messages read. Only messages
// from conversations userID belongs to are accepted.
func (uc *ChatUseCase) MarkNotificationsRead(ctx context.Context, userID string, refs []entity.MessageRef) (int, error) {
	if len(refs) == 0 {
		return 0, nil
	}

	for _, ref := range refs {
		if ref.ConversationID == "" || ref.MessageID == "" {
			return 0, errors.BadRequest("chat_id and message_id are required", nil)
		}
	}

	checked := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if checked[ref.ConversationID] {
			continue
		}
		if err := requireParticipant(ctx, uc.chatRepo, ref.ConversationID, userID); err != nil {
			return 0, err
		}
		checked[ref.ConversationID] = true
	}
	return uc.chatRepo.MarkMessagesRead(ctx, refs)
}

// requireParticipant returns FORBIDDEN unless the stored conversation lists
// userID. Emails may contain the separator, so the id alone is not proof.
func requireParticipant(ctx context.Context, repo repository.ChatRepository, conversationID, userID string) error {
	forbidden := errors.Forbidden("Not a participant of "+conversationID, nil)
	if !participatesIn(conversationID, userID) {
		return forbidden
	}

	conversation, err := repo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return forbidden
		}
		return err
	}
	if !conversation.HasParticipant(userID) {
		return forbidden
	}
	return nil
}

func participatesIn(conversationID, userID string) bool {
	return strings.HasPrefix(conversationID, userID+conversationSeparator) ||
		strings.HasSuffix(conversationID, conversationSeparator+userID)
}
