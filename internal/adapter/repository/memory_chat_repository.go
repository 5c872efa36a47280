package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatsync/internal/domain/entity"
	"chatsync/internal/domain/repository"
	"chatsync/internal/infrastructure/livequery"
	"chatsync/pkg/errors"
)

// MemoryChatRepository is a process-local ChatRepository. Live queries are
// driven by per-topic change signals that coalesce while a delivery is busy.
type MemoryChatRepository struct {
	mu            sync.Mutex
	conversations map[string]*entity.Conversation
	messages      map[string][]*entity.Message
	seq           int64
	unavailable   bool

	watchers  map[string]map[int64]chan struct{}
	watcherID int64

	now func() time.Time
}

var _ repository.ChatRepository = (*MemoryChatRepository)(nil)

func NewMemoryChatRepository() *MemoryChatRepository {
	return &MemoryChatRepository{
		conversations: make(map[string]*entity.Conversation),
		messages:      make(map[string][]*entity.Message),
		watchers:      make(map[string]map[int64]chan struct{}),
		now:           time.Now,
	}
}

// SetAvailable toggles a simulated outage. While unavailable every call fails
// with UNAVAILABLE and open live queries report the error.
func (r *MemoryChatRepository) SetAvailable(available bool) {
	r.mu.Lock()
	r.unavailable = !available
	topics := make([]string, 0, len(r.watchers))
	for topic := range r.watchers {
		topics = append(topics, topic)
	}
	r.signalLocked(topics...)
	r.mu.Unlock()
}

func (r *MemoryChatRepository) checkLocked() error {
	if r.unavailable {
		return errors.Unavailable("Chat store unavailable", nil)
	}
	return nil
}

func messagesTopic(conversationID string) string {
	return "messages/" + conversationID
}

func conversationsTopic(userID string) string {
	return "conversations/" + userID
}

func (r *MemoryChatRepository) EnsureConversation(ctx context.Context, id string, participants []string) error {
	if err := ctx.Err(); err != nil {
		return errors.Timeout("Conversation setup cancelled", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkLocked(); err != nil {
		return err
	}

	if _, ok := r.conversations[id]; ok {
		return nil
	}

	now := r.now()
	r.conversations[id] = &entity.Conversation{
		ID:           id,
		Participants: append([]string(nil), participants...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.signalConversationLocked(id)
	return nil
}

func (r *MemoryChatRepository) GetConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkLocked(); err != nil {
		return nil, err
	}

	conversation, ok := r.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return conversation.Clone(), nil
}

func (r *MemoryChatRepository) ListConversations(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkLocked(); err != nil {
		return nil, err
	}
	return r.conversationsForLocked(userID), nil
}

func (r *MemoryChatRepository) conversationsForLocked(userID string) []*entity.Conversation {
	result := make([]*entity.Conversation, 0)
	for _, conversation := range r.conversations {
		if conversation.HasParticipant(userID) {
			result = append(result, conversation.Clone())
		}
	}
	entity.SortConversations(result)
	return result
}

func (r *MemoryChatRepository) UpdateConversationSummary(ctx context.Context, id, preview string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkLocked(); err != nil {
		return err
	}

	conversation, ok := r.conversations[id]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}

	now := r.now()
	conversation.LastMessage = preview
	conversation.LastMessageTime = now
	conversation.UpdatedAt = now
	r.signalConversationLocked(id)
	return nil
}

func (r *MemoryChatRepository) CreateMessage(ctx context.Context, message *entity.Message) error {
	if message.ConversationID == "" {
		return errors.BadRequest("Message has no conversation", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkLocked(); err != nil {
		return err
	}

	r.seq++
	message.ID = uuid.New().String()
	message.CreatedAt = r.now()
	message.Seq = r.seq
	message.Status = entity.MessageStatusSent

	r.messages[message.ConversationID] = append(r.messages[message.ConversationID], message.Clone())
	r.signalLocked(messagesTopic(message.ConversationID))
	return nil
}

func (r *MemoryChatRepository) ListMessages(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkLocked(); err != nil {
		return nil, err
	}
	return r.messagesForLocked(conversationID), nil
}

func (r *MemoryChatRepository) messagesForLocked(conversationID string) []*entity.Message {
	stored := r.messages[conversationID]
	result := make([]*entity.Message, 0, len(stored))
	for _, m := range stored {
		result = append(result, m.Clone())
	}
	entity.SortMessages(result)
	return result
}

func (r *MemoryChatRepository) MarkMessagesRead(ctx context.Context, refs []entity.MessageRef) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkLocked(); err != nil {
		return 0, err
	}

	changed := 0
	touched := make(map[string]bool)
	for _, ref := range refs {
		for _, m := range r.messages[ref.ConversationID] {
			if m.ID != ref.MessageID {
				continue
			}
			if m.Status.CanAdvanceTo(entity.MessageStatusRead) {
				m.Status = entity.MessageStatusRead
				changed++
				touched[ref.ConversationID] = true
			}
			break
		}
	}

	for conversationID := range touched {
		r.signalLocked(messagesTopic(conversationID))
	}
	return changed, nil
}

func (r *MemoryChatRepository) WatchMessages(ctx context.Context, conversationID string, onChange func([]*entity.Message), onError func(error)) (repository.Subscription, error) {
	return watchTopic(ctx, r, messagesTopic(conversationID), func() ([]*entity.Message, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if err := r.checkLocked(); err != nil {
			return nil, err
		}
		return r.messagesForLocked(conversationID), nil
	}, onChange, onError)
}

func (r *MemoryChatRepository) WatchConversations(ctx context.Context, userID string, onChange func([]*entity.Conversation), onError func(error)) (repository.Subscription, error) {
	return watchTopic(ctx, r, conversationsTopic(userID), func() ([]*entity.Conversation, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if err := r.checkLocked(); err != nil {
			return nil, err
		}
		return r.conversationsForLocked(userID), nil
	}, onChange, onError)
}

// watchTopic registers a change signal for topic and re-reads the full result
// set every time it fires.
func watchTopic[T any](ctx context.Context, r *MemoryChatRepository, topic string, snapshot func() (T, error), onChange func(T), onError func(error)) (repository.Subscription, error) {
	r.mu.Lock()
	if err := r.checkLocked(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.watcherID++
	id := r.watcherID
	notify := make(chan struct{}, 1)
	if r.watchers[topic] == nil {
		r.watchers[topic] = make(map[int64]chan struct{})
	}
	r.watchers[topic][id] = notify
	r.mu.Unlock()

	source := func(ctx context.Context, emit func(T)) error {
		defer r.removeWatcher(topic, id)
		for {
			result, err := snapshot()
			if err != nil {
				return err
			}
			emit(result)

			select {
			case <-ctx.Done():
				return nil
			case <-notify:
			}
		}
	}

	return livequery.Watch(ctx, source, onChange, onError), nil
}

func (r *MemoryChatRepository) removeWatcher(topic string, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watchers[topic], id)
	if len(r.watchers[topic]) == 0 {
		delete(r.watchers, topic)
	}
}

func (r *MemoryChatRepository) signalConversationLocked(id string) {
	conversation := r.conversations[id]
	for _, p := range conversation.Participants {
		r.signalLocked(conversationsTopic(p))
	}
}

func (r *MemoryChatRepository) signalLocked(topics ...string) {
	for _, topic := range topics {
		for _, notify := range r.watchers[topic] {
			select {
			case notify <- struct{}{}:
			default:
			}
		}
	}
}
