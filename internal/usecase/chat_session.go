package usecase

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"chatsync/internal/domain/entity"
	"chatsync/internal/domain/repository"
	"chatsync/internal/infrastructure/ratelimit"
	"chatsync/pkg/errors"
	"chatsync/pkg/logger"
	"chatsync/pkg/metrics"
)

const (
	DefaultChatCreateTimeout = 10 * time.Second
	DefaultChatLoadTimeout   = 8 * time.Second
)

// ChatSessionState is the derived view of the open conversation.
type ChatSessionState struct {
	ConversationID string            `json:"chat_id"`
	Target         string            `json:"target"`
	Messages       []*entity.Message `json:"messages"`
	Loading        bool              `json:"loading"`
	Error          string            `json:"error,omitempty"`
	ErrorCode      string            `json:"error_code,omitempty"`
}

type ChatSessionConfig struct {
	CreateTimeout time.Duration
	LoadTimeout   time.Duration
}

// ChatSession owns at most one open conversation for one user. Open and Close
// are serialized; deliveries from a previous open are ignored once a newer
// open or close has started.
type ChatSession struct {
	repo     repository.ChatRepository
	limiter  *ratelimit.RateLimiter
	userID   string
	cfg      ChatSessionConfig
	onChange func(ChatSessionState)

	ctx    context.Context
	cancel context.CancelFunc

	opMu     sync.Mutex
	notifyMu sync.Mutex
	mu       sync.Mutex

	gen         uint64
	state       ChatSessionState
	sub         repository.Subscription
	loadTimer   *time.Timer
	openFailed  bool
	ready       bool
	pendingRead map[string]bool
}

// NewChatSession builds a session for userID. onChange receives every state
// transition in order and must not call back into the session. limiter may
// be nil.
func NewChatSession(parent context.Context, repo repository.ChatRepository, limiter *ratelimit.RateLimiter, userID string, cfg ChatSessionConfig, onChange func(ChatSessionState)) *ChatSession {
	if cfg.CreateTimeout <= 0 {
		cfg.CreateTimeout = DefaultChatCreateTimeout
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultChatLoadTimeout
	}
	if onChange == nil {
		onChange = func(ChatSessionState) {}
	}

	ctx, cancel := context.WithCancel(parent)
	return &ChatSession{
		repo:        repo,
		limiter:     limiter,
		userID:      userID,
		cfg:         cfg,
		onChange:    onChange,
		ctx:         ctx,
		cancel:      cancel,
		pendingRead: make(map[string]bool),
	}
}

// Open switches the session to the conversation with target. The previous
// subscription, if any, is stopped before the new one is created.
func (s *ChatSession) Open(ctx context.Context, target string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.release()

	target = strings.TrimSpace(target)
	id, idErr := ConversationID(s.userID, target)

	var gen uint64
	s.publish(func() bool {
		s.gen++
		gen = s.gen
		s.state = ChatSessionState{ConversationID: id, Target: target, Loading: idErr == nil}
		s.openFailed = false
		s.ready = false
		s.pendingRead = make(map[string]bool)
		return true
	})

	if idErr != nil {
		s.failOpen(gen, "resolve", idErr)
		return idErr
	}

	if err := s.ensureConversation(ctx, id, target); err != nil {
		s.failOpen(gen, "create", err)
		return err
	}

	sub, err := s.repo.WatchMessages(s.ctx, id,
		func(messages []*entity.Message) { s.deliver(gen, messages) },
		func(err error) { s.failOpen(gen, "subscribe", err) },
	)
	if err != nil {
		s.failOpen(gen, "subscribe", err)
		return err
	}

	s.mu.Lock()
	s.sub = sub
	// the conversation exists and is watched; sends may go through
	s.ready = gen == s.gen
	s.loadTimer = time.AfterFunc(s.cfg.LoadTimeout, func() { s.loadTimedOut(gen) })
	s.mu.Unlock()

	logger.Debug("Chat session %s opened conversation %s", s.userID, id)
	return nil
}

// ensureConversation bounds the create call even when the store ignores ctx.
func (s *ChatSession) ensureConversation(ctx context.Context, id, target string) error {
	createCtx, cancel := context.WithTimeout(ctx, s.cfg.CreateTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.repo.EnsureConversation(createCtx, id, []string{s.userID, target})
	}()

	select {
	case err := <-done:
		if err != nil && stderrors.Is(createCtx.Err(), context.DeadlineExceeded) {
			return errors.Timeout("Failed to initialize chat", err)
		}
		return err
	case <-createCtx.Done():
		return errors.Timeout("Failed to initialize chat", createCtx.Err())
	}
}

// Close stops delivery for the open conversation. No state change is
// published for that conversation after Close returns.
func (s *ChatSession) Close() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.release() {
		s.publish(func() bool { return true })
	}
}

// Shutdown closes the session and cancels in-flight background writes.
func (s *ChatSession) Shutdown() {
	s.Close()
	s.cancel()
}

// release tears down the current open, if any. Callers hold opMu.
func (s *ChatSession) release() bool {
	s.notifyMu.Lock()
	s.mu.Lock()
	s.gen++
	sub := s.sub
	s.sub = nil
	if s.loadTimer != nil {
		s.loadTimer.Stop()
		s.loadTimer = nil
	}
	wasOpen := s.state.ConversationID != "" || s.state.Error != ""
	s.state = ChatSessionState{}
	s.ready = false
	s.pendingRead = make(map[string]bool)
	s.mu.Unlock()
	s.notifyMu.Unlock()

	// Stop waits for an in-flight callback, which takes mu.
	if sub != nil {
		sub.Stop()
	}
	return wasOpen
}

func (s *ChatSession) deliver(gen uint64, messages []*entity.Message) {
	current := s.publish(func() bool {
		if gen != s.gen {
			return false
		}
		if s.loadTimer != nil {
			s.loadTimer.Stop()
			s.loadTimer = nil
		}
		s.state.Messages = messages
		s.state.Loading = false

		for id := range s.pendingRead {
			if !hasUnread(messages, id, s.userID) {
				delete(s.pendingRead, id)
			}
		}
		return true
	})

	if current && len(messages) > 0 {
		go func() {
			if _, err := s.markAsRead(s.ctx, gen, "auto"); err != nil {
				logger.Warn("Auto mark-read failed for %s: %v", s.userID, err)
			}
		}()
	}
}

func hasUnread(messages []*entity.Message, id, userID string) bool {
	for _, m := range messages {
		if m.ID == id {
			return m.IsUnreadFor(userID)
		}
	}
	return false
}

func (s *ChatSession) loadTimedOut(gen uint64) {
	s.failOpen(gen, "load", errors.Timeout("Failed to load messages", nil))
}

// failOpen moves the session into its error state. It fires at most once
// per open.
func (s *ChatSession) failOpen(gen uint64, stage string, err error) {
	fired := s.publish(func() bool {
		if gen != s.gen || s.openFailed {
			return false
		}
		if stage == "load" && !s.state.Loading {
			return false
		}
		s.openFailed = true
		s.state.Loading = false
		s.setError(err)
		return true
	})

	if fired {
		metrics.SessionErrorsTotal.WithLabelValues(stage).Inc()
		logger.Warn("Chat session %s failed at %s: %v", s.userID, stage, err)
	}
}

func (s *ChatSession) setError(err error) {
	s.state.ErrorCode = errors.Code(err)
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		s.state.Error = appErr.Message
		return
	}
	s.state.Error = err.Error()
}

// publish applies mutate under mu and, when it reports a change, hands the
// resulting state to onChange. notifyMu keeps observers seeing states in the
// order they were produced.
func (s *ChatSession) publish(mutate func() bool) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	changed := mutate()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.onChange(snapshot)
	}
	return changed
}

func (s *ChatSession) snapshotLocked() ChatSessionState {
	snapshot := s.state
	snapshot.Messages = append([]*entity.Message(nil), s.state.Messages...)
	return snapshot
}

func (s *ChatSession) State() ChatSessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Send writes body to the open conversation and then updates its summary.
// The message shows up in State only once the subscription delivers it.
func (s *ChatSession) Send(ctx context.Context, body entity.MessageBody, senderName string) (*entity.Message, error) {
	if err := validateBody(&body); err != nil {
		return nil, err
	}

	s.mu.Lock()
	gen := s.gen
	id := s.state.ConversationID
	target := s.state.Target
	ready := s.ready
	s.mu.Unlock()

	if id == "" {
		return nil, errors.BadRequest("No conversation is open", nil)
	}
	if !ready {
		return nil, errors.Unavailable("Conversation is not ready", nil)
	}

	if s.limiter != nil {
		if ok, wait := s.limiter.Allow(s.userID, ratelimit.ActionSendMessage); !ok {
			return nil, errors.TooManyRequests("Sending too fast, retry in "+wait.Round(time.Second).String(), nil)
		}
	}

	if strings.TrimSpace(senderName) == "" {
		senderName = s.userID
	}

	message := &entity.Message{
		ConversationID: id,
		SenderID:       s.userID,
		ReceiverID:     target,
		SenderName:     senderName,
		Body:           body,
	}

	if err := s.repo.CreateMessage(ctx, message); err != nil {
		metrics.RecordMessageSent(string(body.Kind), err)
		s.failSend(gen, err)
		return nil, err
	}
	metrics.RecordMessageSent(string(body.Kind), nil)

	if err := s.repo.UpdateConversationSummary(ctx, id, body.Preview()); err != nil {
		logger.Error("Failed to update summary of %s: %v", id, err)
		s.failSend(gen, err)
		return message, err
	}

	return message, nil
}

func validateBody(body *entity.MessageBody) error {
	if body.Kind == "" {
		body.Kind = entity.MessageKindText
	}
	if !body.Kind.Valid() {
		return errors.BadRequest("Unknown message type", nil)
	}

	if body.Kind == entity.MessageKindText {
		body.Text = strings.TrimSpace(body.Text)
		body.Attachment = nil
		if body.Text == "" {
			return errors.BadRequest("Message cannot be empty", nil)
		}
		return nil
	}

	if body.Attachment == nil || strings.TrimSpace(body.Attachment.URL) == "" {
		return errors.BadRequest("Attachment URL is required", nil)
	}
	body.Text = ""
	return nil
}

func (s *ChatSession) failSend(gen uint64, err error) {
	s.publish(func() bool {
		if gen != s.gen {
			return false
		}
		s.setError(err)
		return true
	})
	metrics.SessionErrorsTotal.WithLabelValues("send").Inc()
}

// MarkAsRead moves every message addressed to the user in the open
// conversation to read. Messages already read or already being written are
// skipped, so a repeated call without new messages writes nothing.
func (s *ChatSession) MarkAsRead(ctx context.Context) (int, error) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	return s.markAsRead(ctx, gen, "manual")
}

func (s *ChatSession) markAsRead(ctx context.Context, gen uint64, source string) (int, error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return 0, nil
	}
	var refs []entity.MessageRef
	for _, m := range s.state.Messages {
		if m.IsUnreadFor(s.userID) && !s.pendingRead[m.ID] {
			s.pendingRead[m.ID] = true
			refs = append(refs, m.Ref())
		}
	}
	s.mu.Unlock()

	if len(refs) == 0 {
		return 0, nil
	}

	changed, err := s.repo.MarkMessagesRead(ctx, refs)
	if err != nil {
		s.mu.Lock()
		if gen == s.gen {
			for _, ref := range refs {
				delete(s.pendingRead, ref.MessageID)
			}
		}
		s.mu.Unlock()
		return 0, err
	}

	metrics.MessagesMarkedReadTotal.WithLabelValues(source).Add(float64(changed))
	return changed, nil
}
