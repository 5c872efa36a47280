package usecase

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"chatsync/internal/domain/entity"
	"chatsync/internal/domain/repository"
)

const DefaultFetchConcurrency = 8

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	ConversationID  string    `json:"chat_id"`
	Peer            string    `json:"other_participant"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
	UpdatedAt       time.Time `json:"updated_at"`
	UnreadCount     int       `json:"unread_count"`
}

func summarize(conversation *entity.Conversation, userID string, unread int) ConversationSummary {
	return ConversationSummary{
		ConversationID:  conversation.ID,
		Peer:            conversation.Peer(userID),
		LastMessage:     conversation.LastMessage,
		LastMessageTime: conversation.LastMessageTime,
		UpdatedAt:       conversation.UpdatedAt,
		UnreadCount:     unread,
	}
}

func countUnread(messages []*entity.Message, userID string) int {
	n := 0
	for _, m := range messages {
		if m.IsUnreadFor(userID) {
			n++
		}
	}
	return n
}

// fetchAllMessages reads every conversation's full message list with at most
// limit reads in flight. Any failed read fails the whole scan.
func fetchAllMessages(ctx context.Context, repo repository.ChatRepository, conversations []*entity.Conversation, limit int) ([][]*entity.Message, error) {
	if limit <= 0 {
		limit = DefaultFetchConcurrency
	}

	results := make([][]*entity.Message, len(conversations))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, conversation := range conversations {
		i, id := i, conversation.ID
		g.Go(func() error {
			messages, err := repo.ListMessages(ctx, id)
			if err != nil {
				return err
			}
			results[i] = messages
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// CollectConversationSummaries is the one-shot form of ChatList.
func CollectConversationSummaries(ctx context.Context, repo repository.ChatRepository, userID string, concurrency int) ([]ConversationSummary, error) {
	conversations, err := repo.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	entity.SortConversations(conversations)

	messages, err := fetchAllMessages(ctx, repo, conversations, concurrency)
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(conversations))
	for i, conversation := range conversations {
		summaries = append(summaries, summarize(conversation, userID, countUnread(messages[i], userID)))
	}
	return summaries, nil
}

// CollectNotifications scans every conversation of userID and returns the
// messages addressed to them that are not read yet, newest first.
//
// Filtering happens after the fetch so the store needs no composite index;
// each call reads every message of every conversation.
func CollectNotifications(ctx context.Context, repo repository.ChatRepository, userID string, concurrency int) ([]entity.Notification, error) {
	conversations, err := repo.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	messages, err := fetchAllMessages(ctx, repo, conversations, concurrency)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		n   entity.Notification
		seq int64
	}
	var found []ranked
	for i, conversation := range conversations {
		peer := conversation.Peer(userID)
		for _, m := range messages[i] {
			if !m.IsUnreadFor(userID) {
				continue
			}
			found = append(found, ranked{seq: m.Seq, n: entity.Notification{
				MessageID:        m.ID,
				ConversationID:   conversation.ID,
				SenderID:         m.SenderID,
				SenderName:       m.SenderName,
				Preview:          m.Body.Preview(),
				Kind:             m.Body.Kind,
				Timestamp:        m.CreatedAt,
				OtherParticipant: peer,
			}})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if !a.n.Timestamp.Equal(b.n.Timestamp) {
			return a.n.Timestamp.After(b.n.Timestamp)
		}
		return a.seq > b.seq
	})

	notifications := make([]entity.Notification, 0, len(found))
	for _, r := range found {
		notifications = append(notifications, r.n)
	}
	return notifications, nil
}
