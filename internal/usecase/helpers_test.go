package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	adapterrepo "chatsync/internal/adapter/repository"
	"chatsync/internal/domain/entity"
	"chatsync/internal/domain/repository"
)

// countingRepo wraps a ChatRepository and counts writes. Hooks, when set,
// replace the wrapped call.
type countingRepo struct {
	repository.ChatRepository

	creates   atomic.Int32
	markCalls atomic.Int32

	ensureHook func(ctx context.Context) error
	watchHook  func() (repository.Subscription, error)
	createHook func() error
	markHook   func() error
}

func (r *countingRepo) EnsureConversation(ctx context.Context, id string, participants []string) error {
	if r.ensureHook != nil {
		return r.ensureHook(ctx)
	}
	return r.ChatRepository.EnsureConversation(ctx, id, participants)
}

func (r *countingRepo) CreateMessage(ctx context.Context, message *entity.Message) error {
	r.creates.Add(1)
	if r.createHook != nil {
		return r.createHook()
	}
	return r.ChatRepository.CreateMessage(ctx, message)
}

func (r *countingRepo) MarkMessagesRead(ctx context.Context, refs []entity.MessageRef) (int, error) {
	r.markCalls.Add(1)
	if r.markHook != nil {
		if err := r.markHook(); err != nil {
			return 0, err
		}
	}
	return r.ChatRepository.MarkMessagesRead(ctx, refs)
}

func (r *countingRepo) WatchMessages(ctx context.Context, id string, onChange func([]*entity.Message), onError func(error)) (repository.Subscription, error) {
	if r.watchHook != nil {
		return r.watchHook()
	}
	return r.ChatRepository.WatchMessages(ctx, id, onChange, onError)
}

type nopSubscription struct{}

func (nopSubscription) Stop() {}

func newStore() (*adapterrepo.MemoryChatRepository, *countingRepo) {
	store := adapterrepo.NewMemoryChatRepository()
	return store, &countingRepo{ChatRepository: store}
}

// recorder collects observed values in order.
type recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

func (r *recorder[T]) last() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	if len(r.values) == 0 {
		return zero, false
	}
	return r.values[len(r.values)-1], true
}

func errorStates(states []ChatSessionState) int {
	n := 0
	for i, s := range states {
		if s.Error == "" {
			continue
		}
		if i == 0 || states[i-1].Error != s.Error || states[i-1].ConversationID != s.ConversationID {
			n++
		}
	}
	return n
}

func openSession(t *testing.T, repo repository.ChatRepository, user, target string) (*ChatSession, *recorder[ChatSessionState]) {
	t.Helper()
	states := &recorder[ChatSessionState]{}
	s := NewChatSession(context.Background(), repo, nil, user, ChatSessionConfig{
		CreateTimeout: time.Second,
		LoadTimeout:   time.Second,
	}, states.add)
	t.Cleanup(s.Shutdown)
	require.NoError(t, s.Open(context.Background(), target))
	return s, states
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func sendText(t *testing.T, store *adapterrepo.MemoryChatRepository, from, to, text string) {
	t.Helper()
	ctx := context.Background()
	id, err := ConversationID(from, to)
	require.NoError(t, err)
	require.NoError(t, store.EnsureConversation(ctx, id, []string{from, to}))
	require.NoError(t, store.CreateMessage(ctx, &entity.Message{
		ConversationID: id,
		SenderID:       from,
		ReceiverID:     to,
		SenderName:     from,
		Body:           entity.TextBody(text),
	}))
	require.NoError(t, store.UpdateConversationSummary(ctx, id, text))
}
