package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain/entity"
	"chatsync/pkg/errors"
)

func newTestMessage(conversationID, from, to, text string) *entity.Message {
	return &entity.Message{
		ConversationID: conversationID,
		SenderID:       from,
		ReceiverID:     to,
		SenderName:     from,
		Body:           entity.TextBody(text),
	}
}

func TestMemoryChatRepository_EnsureConversationKeepsMetadata(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryChatRepository()

	require.NoError(t, repo.EnsureConversation(ctx, "a_b", []string{"a", "b"}))
	require.NoError(t, repo.UpdateConversationSummary(ctx, "a_b", "hello"))
	require.NoError(t, repo.EnsureConversation(ctx, "a_b", []string{"a", "b"}))

	conversation, err := repo.GetConversation(ctx, "a_b")
	require.NoError(t, err)
	assert.Equal(t, "hello", conversation.LastMessage)
	assert.ElementsMatch(t, []string{"a", "b"}, conversation.Participants)
}

func TestMemoryChatRepository_CreateMessageAssignsStoreFields(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryChatRepository()

	first := newTestMessage("a_b", "a", "b", "one")
	first.Status = entity.MessageStatusRead
	require.NoError(t, repo.CreateMessage(ctx, first))
	second := newTestMessage("a_b", "b", "a", "two")
	require.NoError(t, repo.CreateMessage(ctx, second))

	assert.NotEmpty(t, first.ID)
	assert.Equal(t, entity.MessageStatusSent, first.Status)
	assert.Less(t, first.Seq, second.Seq)

	messages, err := repo.ListMessages(ctx, "a_b")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "one", messages[0].Body.Text)
	assert.Equal(t, "two", messages[1].Body.Text)
}

func TestMemoryChatRepository_ListMessagesBreaksTiesBySeq(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryChatRepository()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	for _, text := range []string{"x", "y", "z"} {
		require.NoError(t, repo.CreateMessage(ctx, newTestMessage("a_b", "a", "b", text)))
	}

	messages, err := repo.ListMessages(ctx, "a_b")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "x", messages[0].Body.Text)
	assert.Equal(t, "y", messages[1].Body.Text)
	assert.Equal(t, "z", messages[2].Body.Text)
}

func TestMemoryChatRepository_MarkMessagesReadIsMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryChatRepository()

	m := newTestMessage("a_b", "a", "b", "hi")
	require.NoError(t, repo.CreateMessage(ctx, m))

	changed, err := repo.MarkMessagesRead(ctx, []entity.MessageRef{m.Ref(), {ConversationID: "a_b", MessageID: "missing"}})
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	changed, err = repo.MarkMessagesRead(ctx, []entity.MessageRef{m.Ref()})
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	messages, err := repo.ListMessages(ctx, "a_b")
	require.NoError(t, err)
	assert.Equal(t, entity.MessageStatusRead, messages[0].Status)
}

func TestMemoryChatRepository_ListConversationsByParticipant(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryChatRepository()

	require.NoError(t, repo.EnsureConversation(ctx, "a_b", []string{"a", "b"}))
	require.NoError(t, repo.EnsureConversation(ctx, "a_c", []string{"a", "c"}))
	require.NoError(t, repo.EnsureConversation(ctx, "b_c", []string{"b", "c"}))
	require.NoError(t, repo.UpdateConversationSummary(ctx, "a_b", "latest"))

	conversations, err := repo.ListConversations(ctx, "a")
	require.NoError(t, err)
	require.Len(t, conversations, 2)
	assert.Equal(t, "a_b", conversations[0].ID)
	assert.Equal(t, "a_c", conversations[1].ID)
}

func TestMemoryChatRepository_Unavailable(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryChatRepository()
	repo.SetAvailable(false)

	err := repo.EnsureConversation(ctx, "a_b", []string{"a", "b"})
	assert.True(t, errors.Is(err, "UNAVAILABLE"))

	_, err = repo.ListConversations(ctx, "a")
	assert.True(t, errors.Is(err, "UNAVAILABLE"))

	_, err = repo.WatchMessages(ctx, "a_b", func([]*entity.Message) {}, nil)
	assert.True(t, errors.Is(err, "UNAVAILABLE"))

	repo.SetAvailable(true)
	assert.NoError(t, repo.EnsureConversation(ctx, "a_b", []string{"a", "b"}))
}

func TestMemoryChatRepository_WatchMessagesDeliversFullSet(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryChatRepository()

	deliveries := make(chan []*entity.Message, 10)
	sub, err := repo.WatchMessages(ctx, "a_b", func(messages []*entity.Message) {
		deliveries <- messages
	}, func(err error) {
		t.Errorf("unexpected error: %v", err)
	})
	require.NoError(t, err)
	defer sub.Stop()

	initial := <-deliveries
	assert.Empty(t, initial)

	require.NoError(t, repo.CreateMessage(ctx, newTestMessage("a_b", "a", "b", "hi")))

	require.Eventually(t, func() bool {
		select {
		case messages := <-deliveries:
			return len(messages) == 1 && messages[0].Body.Text == "hi"
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryChatRepository_WatchReportsOutage(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryChatRepository()

	errs := make(chan error, 1)
	sub, err := repo.WatchConversations(ctx, "a", func([]*entity.Conversation) {}, func(err error) {
		errs <- err
	})
	require.NoError(t, err)
	defer sub.Stop()

	repo.SetAvailable(false)

	select {
	case err := <-errs:
		assert.True(t, errors.Is(err, "UNAVAILABLE"))
	case <-time.After(time.Second):
		t.Fatal("expected outage to be reported")
	}
}

func TestMemoryChatRepository_NoCallbackAfterStop(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryChatRepository()
	require.NoError(t, repo.EnsureConversation(ctx, "a_b", []string{"a", "b"}))

	var mu sync.Mutex
	stopped := false
	late := false
	first := make(chan struct{}, 1)

	sub, err := repo.WatchConversations(ctx, "a", func([]*entity.Conversation) {
		mu.Lock()
		if stopped {
			late = true
		}
		mu.Unlock()
		select {
		case first <- struct{}{}:
		default:
		}
	}, nil)
	require.NoError(t, err)
	<-first

	sub.Stop()
	mu.Lock()
	stopped = true
	mu.Unlock()

	for i := 0; i < 20; i++ {
		require.NoError(t, repo.UpdateConversationSummary(ctx, "a_b", "ping"))
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, late)
}
