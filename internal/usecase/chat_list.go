package usecase

import (
	"context"
	"sync"

	"chatsync/internal/domain/entity"
	"chatsync/internal/domain/repository"
	"chatsync/pkg/logger"
	"chatsync/pkg/metrics"
)

// ChatList keeps a live, most-recent-first summary of every conversation a
// user takes part in. Unread counts come from one message subscription per
// conversation.
type ChatList struct {
	repo     repository.ChatRepository
	userID   string
	onChange func([]ConversationSummary)
	onError  func(error)

	ctx    context.Context
	cancel context.CancelFunc

	// emitMu orders deliveries to onChange; it is taken before mu.
	emitMu sync.Mutex
	mu     sync.Mutex

	started       bool
	stopped       bool
	convSub       repository.Subscription
	conversations []*entity.Conversation
	tracked       map[string]bool
	unread        map[string]int
	msgSubs       map[string]repository.Subscription
}

func NewChatList(parent context.Context, repo repository.ChatRepository, userID string, onChange func([]ConversationSummary), onError func(error)) *ChatList {
	if onChange == nil {
		onChange = func([]ConversationSummary) {}
	}
	ctx, cancel := context.WithCancel(parent)
	return &ChatList{
		repo:     repo,
		userID:   userID,
		onChange: onChange,
		onError:  onError,
		ctx:      ctx,
		cancel:   cancel,
		tracked:  make(map[string]bool),
		unread:   make(map[string]int),
		msgSubs:  make(map[string]repository.Subscription),
	}
}

func (l *ChatList) Start() error {
	l.mu.Lock()
	if l.started || l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.started = true
	l.mu.Unlock()

	sub, err := l.repo.WatchConversations(l.ctx, l.userID, l.onConversations, l.fail)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		sub.Stop()
		return nil
	}
	l.convSub = sub
	l.mu.Unlock()
	return nil
}

func (l *ChatList) onConversations(conversations []*entity.Conversation) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}

	current := make(map[string]bool, len(conversations))
	var added []string
	for _, c := range conversations {
		current[c.ID] = true
		if !l.tracked[c.ID] {
			added = append(added, c.ID)
		}
	}

	var removed []repository.Subscription
	for id := range l.tracked {
		if current[id] {
			continue
		}
		if sub, ok := l.msgSubs[id]; ok {
			removed = append(removed, sub)
			delete(l.msgSubs, id)
		}
		delete(l.unread, id)
	}

	l.tracked = current
	l.conversations = conversations
	l.mu.Unlock()

	// Outside mu: Stop waits for callbacks that take it.
	for _, sub := range removed {
		sub.Stop()
	}

	for _, id := range added {
		l.watchConversation(id)
	}

	l.emit()
}

func (l *ChatList) watchConversation(id string) {
	sub, err := l.repo.WatchMessages(l.ctx, id, func(messages []*entity.Message) {
		l.onMessages(id, messages)
	}, l.fail)
	if err != nil {
		l.fail(err)
		return
	}

	l.mu.Lock()
	if l.stopped || !l.tracked[id] || l.msgSubs[id] != nil {
		l.mu.Unlock()
		sub.Stop()
		return
	}
	l.msgSubs[id] = sub
	l.mu.Unlock()
}

func (l *ChatList) onMessages(id string, messages []*entity.Message) {
	l.mu.Lock()
	if l.stopped || !l.tracked[id] {
		l.mu.Unlock()
		return
	}
	n := countUnread(messages, l.userID)
	changed := l.unread[id] != n
	l.unread[id] = n
	l.mu.Unlock()

	if changed {
		l.emit()
	}
}

func (l *ChatList) fail(err error) {
	metrics.SessionErrorsTotal.WithLabelValues("list").Inc()
	logger.Warn("Conversation list of %s: %v", l.userID, err)
	if l.onError != nil {
		l.onError(err)
	}
}

func (l *ChatList) emit() {
	l.emitMu.Lock()
	defer l.emitMu.Unlock()

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	summaries := l.summariesLocked()
	l.mu.Unlock()

	l.onChange(summaries)
}

func (l *ChatList) summariesLocked() []ConversationSummary {
	summaries := make([]ConversationSummary, 0, len(l.conversations))
	for _, c := range l.conversations {
		summaries = append(summaries, summarize(c, l.userID, l.unread[c.ID]))
	}
	return summaries
}

func (l *ChatList) Summaries() []ConversationSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summariesLocked()
}

// Stop releases every subscription. It is safe to call more than once.
func (l *ChatList) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	subs := make([]repository.Subscription, 0, len(l.msgSubs)+1)
	if l.convSub != nil {
		subs = append(subs, l.convSub)
	}
	for _, sub := range l.msgSubs {
		subs = append(subs, sub)
	}
	l.msgSubs = make(map[string]repository.Subscription)
	l.mu.Unlock()

	for _, sub := range subs {
		sub.Stop()
	}
	l.cancel()
}
