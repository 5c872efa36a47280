package repository

import (
	"context"

	"chatsync/internal/domain/entity"
)

// Subscription is the handle of a live query. Stop is idempotent; once it
// returns no further callback of that query runs.
type Subscription interface {
	Stop()
}

type ChatRepository interface {
	// EnsureConversation creates the conversation if it does not exist yet.
	// Existing metadata is never overwritten.
	EnsureConversation(ctx context.Context, id string, participants []string) error
	GetConversation(ctx context.Context, id string) (*entity.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*entity.Conversation, error)
	UpdateConversationSummary(ctx context.Context, id, preview string) error

	// CreateMessage appends message to its conversation. The store assigns
	// ID, CreatedAt and Seq; Status is forced to sent.
	CreateMessage(ctx context.Context, message *entity.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*entity.Message, error)
	// MarkMessagesRead moves every referenced message to read as one atomic
	// batch and returns how many actually changed.
	MarkMessagesRead(ctx context.Context, refs []entity.MessageRef) (int, error)

	WatchMessages(ctx context.Context, conversationID string, onChange func([]*entity.Message), onError func(error)) (Subscription, error)
	WatchConversations(ctx context.Context, userID string, onChange func([]*entity.Conversation), onError func(error)) (Subscription, error)
}
