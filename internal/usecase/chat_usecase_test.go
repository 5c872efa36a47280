package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain/entity"
	"chatsync/pkg/errors"
)

func TestChatUseCase_GetMessages(t *testing.T) {
	store, repo := newStore()
	uc := NewChatUseCase(repo, nil, testSessionConfig())

	_, err := uc.GetMessages(context.Background(), alice, bob)
	assert.True(t, errors.Is(err, "NOT_FOUND"))

	sendText(t, store, alice, bob, "one")
	sendText(t, store, bob, alice, "two")

	messages, err := uc.GetMessages(context.Background(), bob, alice)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "one", messages[0].Body.Text)
	assert.Equal(t, entity.MessageStatusSent, messages[0].Status)
}

func TestChatUseCase_ListConversationsAndNotifications(t *testing.T) {
	store, repo := newStore()
	uc := NewChatUseCase(repo, nil, testSessionConfig())

	sendText(t, store, alice, bob, "one")
	sendText(t, store, carol, bob, "two")

	summaries, err := uc.ListConversations(context.Background(), bob)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)

	feed, err := uc.ListNotifications(context.Background(), bob)
	require.NoError(t, err)
	assert.Equal(t, 2, feed.UnreadCount)
}

func TestChatUseCase_MarkNotificationsRead(t *testing.T) {
	store, repo := newStore()
	uc := NewChatUseCase(repo, nil, testSessionConfig())
	sendText(t, store, alice, bob, "one")

	feed, err := uc.ListNotifications(context.Background(), bob)
	require.NoError(t, err)
	require.Len(t, feed.Notifications, 1)
	ref := feed.Notifications[0].Ref()

	_, err = uc.MarkNotificationsRead(context.Background(), carol, []entity.MessageRef{ref})
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	_, err = uc.MarkNotificationsRead(context.Background(), bob, []entity.MessageRef{{ConversationID: ref.ConversationID}})
	assert.True(t, errors.Is(err, "BAD_REQUEST"))

	n, err := uc.MarkNotificationsRead(context.Background(), bob, []entity.MessageRef{ref})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = uc.MarkNotificationsRead(context.Background(), bob, []entity.MessageRef{ref})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestParticipatesIn(t *testing.T) {
	assert.True(t, participatesIn("a_b@x.com_c@x.com", "a_b@x.com"))
	assert.True(t, participatesIn("a_b@x.com_c@x.com", "c@x.com"))
	assert.False(t, participatesIn("a_b@x.com_c@x.com", "b@x.com"))
}

func TestChatUseCase_MarkNotificationsReadChecksStoredParticipants(t *testing.T) {
	store, repo := newStore()
	uc := NewChatUseCase(repo, nil, testSessionConfig())
	sendText(t, store, "a_b@x.com", "c@x.com", "hi")

	feed, err := uc.ListNotifications(context.Background(), "c@x.com")
	require.NoError(t, err)
	require.Len(t, feed.Notifications, 1)
	ref := feed.Notifications[0].Ref()

	// "a" matches the id prefix but is not a participant.
	require.True(t, participatesIn(ref.ConversationID, "a"))
	_, err = uc.MarkNotificationsRead(context.Background(), "a", []entity.MessageRef{ref})
	assert.True(t, errors.Is(err, "FORBIDDEN"))
	assert.Zero(t, repo.markCalls.Load())
}
