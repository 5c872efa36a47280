package usecase

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain/entity"
	"chatsync/internal/domain/repository"
	"chatsync/internal/infrastructure/ratelimit"
	"chatsync/pkg/errors"
)

const (
	alice = "a@x.com"
	bob   = "b@x.com"
	carol = "c@x.com"
)

func TestChatSession_SendRoundTrip(t *testing.T) {
	_, repo := newStore()
	s, _ := openSession(t, repo, alice, bob)

	msg, err := s.Send(context.Background(), entity.TextBody("hi"), "Alice")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	waitFor(t, func() bool { return len(s.State().Messages) == 1 })

	got := s.State().Messages[0]
	assert.Equal(t, "hi", got.Body.Text)
	assert.Equal(t, alice, got.SenderID)
	assert.Equal(t, bob, got.ReceiverID)
	assert.Equal(t, "Alice", got.SenderName)
	assert.Equal(t, entity.MessageStatusSent, got.Status)

	conversation, err := repo.GetConversation(context.Background(), "a@x.com_b@x.com")
	require.NoError(t, err)
	assert.Equal(t, "hi", conversation.LastMessage)
}

func TestChatSession_LoadingUntilFirstDelivery(t *testing.T) {
	_, repo := newStore()
	s, states := openSession(t, repo, alice, bob)

	first := states.all()[0]
	assert.True(t, first.Loading)
	assert.Equal(t, "a@x.com_b@x.com", first.ConversationID)

	waitFor(t, func() bool { return !s.State().Loading })
	assert.Empty(t, s.State().Error)
}

func TestChatSession_BlankBodyRejectedWithoutWrite(t *testing.T) {
	_, repo := newStore()
	s, _ := openSession(t, repo, alice, bob)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := s.Send(context.Background(), entity.TextBody(text), "Alice")
		assert.True(t, errors.Is(err, "BAD_REQUEST"))
	}
	_, err := s.Send(context.Background(), entity.MessageBody{Kind: entity.MessageKindPhoto}, "Alice")
	assert.True(t, errors.Is(err, "BAD_REQUEST"))

	assert.Equal(t, int32(0), repo.creates.Load())
}

func TestChatSession_SendAttachment(t *testing.T) {
	_, repo := newStore()
	s, _ := openSession(t, repo, alice, bob)

	_, err := s.Send(context.Background(), entity.FileBody(entity.Attachment{
		URL:      "https://storage.googleapis.com/b/chat-files/x.pdf",
		FileName: "report.pdf",
		FileType: "pdf",
	}), "Alice")
	require.NoError(t, err)

	waitFor(t, func() bool { return len(s.State().Messages) == 1 })
	got := s.State().Messages[0]
	require.NotNil(t, got.Body.Attachment)
	assert.Equal(t, "report.pdf", got.Body.Attachment.FileName)

	conversation, err := repo.GetConversation(context.Background(), "a@x.com_b@x.com")
	require.NoError(t, err)
	assert.Equal(t, "📄 report.pdf", conversation.LastMessage)
}

func TestChatSession_SendFailureSetsErrorWithoutEcho(t *testing.T) {
	_, repo := newStore()
	s, _ := openSession(t, repo, alice, bob)
	waitFor(t, func() bool { return !s.State().Loading })

	repo.createHook = func() error { return errors.Unavailable("Chat store unavailable", nil) }

	_, err := s.Send(context.Background(), entity.TextBody("hi"), "Alice")
	assert.True(t, errors.Is(err, "UNAVAILABLE"))

	state := s.State()
	assert.Empty(t, state.Messages)
	assert.Equal(t, "UNAVAILABLE", state.ErrorCode)
}

func TestChatSession_SendWithoutOpen(t *testing.T) {
	_, repo := newStore()
	s := NewChatSession(context.Background(), repo, nil, alice, ChatSessionConfig{}, nil)
	defer s.Shutdown()

	_, err := s.Send(context.Background(), entity.TextBody("hi"), "Alice")
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestChatSession_SendRateLimited(t *testing.T) {
	_, repo := newStore()
	limiter := ratelimit.NewRateLimiterWithPolicies(map[string]ratelimit.Policy{
		ratelimit.ActionSendMessage: {Burst: 1, Every: time.Hour},
	})
	s := NewChatSession(context.Background(), repo, limiter, alice, ChatSessionConfig{}, nil)
	defer s.Shutdown()
	require.NoError(t, s.Open(context.Background(), bob))

	_, err := s.Send(context.Background(), entity.TextBody("one"), "Alice")
	require.NoError(t, err)
	_, err = s.Send(context.Background(), entity.TextBody("two"), "Alice")
	assert.True(t, errors.Is(err, "TOO_MANY_REQUESTS"))
	assert.Equal(t, int32(1), repo.creates.Load())
}

func TestChatSession_BothSidesShareHistory(t *testing.T) {
	_, repo := newStore()

	a, _ := openSession(t, repo, alice, bob)
	_, err := a.Send(context.Background(), entity.TextBody("from a"), "Alice")
	require.NoError(t, err)

	b, _ := openSession(t, repo, bob, alice)
	_, err = b.Send(context.Background(), entity.TextBody("from b"), "Bob")
	require.NoError(t, err)

	assert.Equal(t, a.State().ConversationID, b.State().ConversationID)

	waitFor(t, func() bool {
		return len(a.State().Messages) == 2 && len(b.State().Messages) == 2
	})
	for i := range a.State().Messages {
		assert.Equal(t, a.State().Messages[i].ID, b.State().Messages[i].ID)
	}
	assert.Equal(t, "from a", b.State().Messages[0].Body.Text)
	assert.Equal(t, "from b", b.State().Messages[1].Body.Text)
}

func TestChatSession_OpenMarksUnreadAsRead(t *testing.T) {
	store, repo := newStore()
	sendText(t, store, alice, bob, "one")
	sendText(t, store, alice, bob, "two")

	b, _ := openSession(t, repo, bob, alice)

	waitFor(t, func() bool {
		messages := b.State().Messages
		if len(messages) != 2 {
			return false
		}
		for _, m := range messages {
			if m.Status != entity.MessageStatusRead {
				return false
			}
		}
		return true
	})
}

func TestChatSession_OwnMessagesStayUnreadForPeer(t *testing.T) {
	_, repo := newStore()
	a, _ := openSession(t, repo, alice, bob)

	_, err := a.Send(context.Background(), entity.TextBody("hi"), "Alice")
	require.NoError(t, err)
	waitFor(t, func() bool { return len(a.State().Messages) == 1 })

	n, err := a.MarkAsRead(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, entity.MessageStatusSent, a.State().Messages[0].Status)
}

func TestChatSession_MarkAsReadIdempotent(t *testing.T) {
	store, repo := newStore()
	sendText(t, store, alice, bob, "hi")

	b, _ := openSession(t, repo, bob, alice)
	waitFor(t, func() bool {
		messages := b.State().Messages
		return len(messages) == 1 && messages[0].Status == entity.MessageStatusRead
	})

	before := repo.markCalls.Load()
	n, err := b.MarkAsRead(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = b.MarkAsRead(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, before, repo.markCalls.Load())
	assert.Equal(t, entity.MessageStatusRead, b.State().Messages[0].Status)
}

func TestChatSession_MarkReadFailureIsRetried(t *testing.T) {
	store, repo := newStore()
	sendText(t, store, alice, bob, "hi")

	var failed atomic.Bool
	done := make(chan struct{})
	repo.markHook = func() error {
		if failed.CompareAndSwap(false, true) {
			close(done)
			return errors.Unavailable("Chat store unavailable", nil)
		}
		return nil
	}

	b, _ := openSession(t, repo, bob, alice)
	<-done

	waitFor(t, func() bool {
		n, err := b.MarkAsRead(context.Background())
		return err == nil && n == 1
	})
	assert.Empty(t, b.State().Error)
}

func TestChatSession_CreateTimeoutFiresOnce(t *testing.T) {
	_, repo := newStore()
	repo.ensureHook = func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return ctx.Err()
	}

	states := &recorder[ChatSessionState]{}
	s := NewChatSession(context.Background(), repo, nil, alice, ChatSessionConfig{
		CreateTimeout: 30 * time.Millisecond,
		LoadTimeout:   30 * time.Millisecond,
	}, states.add)
	defer s.Shutdown()

	err := s.Open(context.Background(), bob)
	assert.True(t, errors.Is(err, "TIMEOUT"))

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, errorStates(states.all()))
	state := s.State()
	assert.False(t, state.Loading)
	assert.Equal(t, "TIMEOUT", state.ErrorCode)
	assert.Equal(t, "Failed to initialize chat", state.Error)
}

func TestChatSession_SendAfterFailedOpenWritesNothing(t *testing.T) {
	tests := []struct {
		name  string
		setup func(repo *countingRepo)
	}{
		{"create fails", func(repo *countingRepo) {
			repo.ensureHook = func(ctx context.Context) error {
				return errors.Unavailable("store offline", nil)
			}
		}},
		{"subscribe fails", func(repo *countingRepo) {
			repo.watchHook = func() (repository.Subscription, error) {
				return nil, errors.Unavailable("store offline", nil)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, repo := newStore()
			tt.setup(repo)

			s := NewChatSession(context.Background(), repo, nil, alice, ChatSessionConfig{}, nil)
			defer s.Shutdown()

			require.Error(t, s.Open(context.Background(), bob))

			_, err := s.Send(context.Background(), entity.TextBody("hi"), "Alice")
			assert.True(t, errors.Is(err, "UNAVAILABLE"))
			assert.Zero(t, repo.creates.Load())

			messages, err := store.ListMessages(context.Background(), "a@x.com_b@x.com")
			require.NoError(t, err)
			assert.Empty(t, messages)
		})
	}
}

func TestChatSession_LoadTimeoutFiresOnce(t *testing.T) {
	_, repo := newStore()
	repo.watchHook = func() (repository.Subscription, error) { return nopSubscription{}, nil }

	states := &recorder[ChatSessionState]{}
	s := NewChatSession(context.Background(), repo, nil, alice, ChatSessionConfig{
		LoadTimeout: 20 * time.Millisecond,
	}, states.add)
	defer s.Shutdown()

	require.NoError(t, s.Open(context.Background(), bob))

	waitFor(t, func() bool { return s.State().Error != "" })
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 1, errorStates(states.all()))
	assert.Equal(t, "Failed to load messages", s.State().Error)
	assert.False(t, s.State().Loading)
}

func TestChatSession_ReopenSwitchesConversation(t *testing.T) {
	store, repo := newStore()
	sendText(t, store, bob, alice, "from bob")
	sendText(t, store, carol, alice, "from carol")

	s, states := openSession(t, repo, alice, bob)
	waitFor(t, func() bool { return len(s.State().Messages) == 1 })

	require.NoError(t, s.Open(context.Background(), carol))
	waitFor(t, func() bool {
		st := s.State()
		return st.Target == carol && len(st.Messages) == 1
	})

	mark := len(states.all())
	sendText(t, store, bob, alice, "late from bob")
	time.Sleep(30 * time.Millisecond)

	for _, st := range states.all()[mark:] {
		assert.Equal(t, "a@x.com_c@x.com", st.ConversationID)
	}
	assert.Equal(t, "from carol", s.State().Messages[0].Body.Text)
}

func TestChatSession_NoStateAfterClose(t *testing.T) {
	store, repo := newStore()
	s, states := openSession(t, repo, alice, bob)
	waitFor(t, func() bool { return !s.State().Loading })

	s.Close()
	s.Close()
	mark := len(states.all())

	for i := 0; i < 5; i++ {
		sendText(t, store, bob, alice, "after close")
	}
	time.Sleep(30 * time.Millisecond)

	assert.Len(t, states.all(), mark)
	assert.Empty(t, s.State().ConversationID)
}

func TestChatSession_OpenSelfRejected(t *testing.T) {
	_, repo := newStore()
	s := NewChatSession(context.Background(), repo, nil, alice, ChatSessionConfig{}, nil)
	defer s.Shutdown()

	err := s.Open(context.Background(), alice)
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
	assert.NotEmpty(t, s.State().Error)
}
