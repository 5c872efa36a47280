package usecase

import (
	"context"
	"sync"
	"time"

	"chatsync/internal/domain/entity"
	"chatsync/internal/domain/repository"
	"chatsync/pkg/errors"
	"chatsync/pkg/logger"
	"chatsync/pkg/metrics"
)

const DefaultNotificationPollInterval = 5 * time.Second

// NotificationFeed is the unread feed as of one poll cycle.
type NotificationFeed struct {
	Notifications []entity.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unread_count"`
	RefreshedAt   time.Time             `json:"refreshed_at"`
}

type NotificationConfig struct {
	PollInterval     time.Duration
	FetchConcurrency int
}

// NotificationAggregator polls every conversation of a user on a fixed
// interval and exposes the messages they have not read yet. Each poll
// replaces the feed as a whole. A poll that overlapped a mark operation is
// discarded and the next one is authoritative.
type NotificationAggregator struct {
	repo     repository.ChatRepository
	userID   string
	cfg      NotificationConfig
	onChange func(NotificationFeed)

	emitMu sync.Mutex
	mu     sync.Mutex

	feed        []entity.Notification
	refreshedAt time.Time
	epoch       uint64
	marking     int
	lastErr     error

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewNotificationAggregator(repo repository.ChatRepository, userID string, cfg NotificationConfig, onChange func(NotificationFeed)) *NotificationAggregator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultNotificationPollInterval
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = DefaultFetchConcurrency
	}
	if onChange == nil {
		onChange = func(NotificationFeed) {}
	}
	return &NotificationAggregator{
		repo:     repo,
		userID:   userID,
		cfg:      cfg,
		onChange: onChange,
		done:     make(chan struct{}),
	}
}

// Start polls once immediately and then every PollInterval until Stop or
// until parent is cancelled.
func (a *NotificationAggregator) Start(parent context.Context) {
	a.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		a.mu.Lock()
		a.cancel = cancel
		a.mu.Unlock()

		go a.run(ctx)
	})
}

func (a *NotificationAggregator) run(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		_ = a.Poll(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the timer and waits for an in-flight poll to finish.
func (a *NotificationAggregator) Stop() {
	a.stopOnce.Do(func() {
		started := true
		a.startOnce.Do(func() { started = false })

		a.mu.Lock()
		cancel := a.cancel
		a.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if started {
			<-a.done
		}
	})
}

// Poll runs one cycle. On failure the previous feed stays in place.
func (a *NotificationAggregator) Poll(ctx context.Context) error {
	a.mu.Lock()
	epoch := a.epoch
	busy := a.marking > 0
	a.mu.Unlock()

	start := time.Now()
	notifications, err := CollectNotifications(ctx, a.repo, a.userID, a.cfg.FetchConcurrency)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		metrics.RecordPoll("error", elapsed)
		logger.Warn("Notification poll for %s failed, keeping previous feed: %v", a.userID, err)
		a.mu.Lock()
		a.lastErr = err
		a.mu.Unlock()
		return err
	}

	applied := a.apply(func() bool {
		if busy || a.marking > 0 || a.epoch != epoch {
			return false
		}
		a.feed = notifications
		a.refreshedAt = time.Now()
		a.lastErr = nil
		return true
	})

	if applied {
		metrics.RecordPoll("ok", elapsed)
	} else {
		metrics.RecordPoll("discarded", elapsed)
		logger.Debug("Notification poll for %s overlapped a mark operation, discarded", a.userID)
	}
	return nil
}

// MarkOneAsRead removes the notification locally and marks its message read.
func (a *NotificationAggregator) MarkOneAsRead(ctx context.Context, messageID, conversationID string) error {
	if messageID == "" || conversationID == "" {
		return errors.BadRequest("message_id and chat_id are required", nil)
	}
	if err := requireParticipant(ctx, a.repo, conversationID, a.userID); err != nil {
		return err
	}
	ref := entity.MessageRef{ConversationID: conversationID, MessageID: messageID}

	a.beginMark(func() {
		kept := a.feed[:0:0]
		for _, n := range a.feed {
			if n.Ref() != ref {
				kept = append(kept, n)
			}
		}
		a.feed = kept
	})
	defer a.endMark()

	changed, err := a.repo.MarkMessagesRead(ctx, []entity.MessageRef{ref})
	if err != nil {
		logger.Warn("Failed to mark %s/%s as read: %v", conversationID, messageID, err)
		return err
	}
	metrics.MessagesMarkedReadTotal.WithLabelValues("notification").Add(float64(changed))
	return nil
}

// MarkAllAsRead marks every message of the current feed read in one batch.
func (a *NotificationAggregator) MarkAllAsRead(ctx context.Context) (int, error) {
	var refs []entity.MessageRef
	a.beginMark(func() {
		for _, n := range a.feed {
			refs = append(refs, n.Ref())
		}
		a.feed = nil
	})
	defer a.endMark()

	if len(refs) == 0 {
		return 0, nil
	}

	changed, err := a.repo.MarkMessagesRead(ctx, refs)
	if err != nil {
		logger.Warn("Failed to mark all notifications of %s as read: %v", a.userID, err)
		return 0, err
	}
	metrics.MessagesMarkedReadTotal.WithLabelValues("notification").Add(float64(changed))
	return changed, nil
}

func (a *NotificationAggregator) beginMark(mutate func()) {
	a.apply(func() bool {
		a.epoch++
		a.marking++
		mutate()
		return true
	})
}

func (a *NotificationAggregator) endMark() {
	a.mu.Lock()
	a.epoch++
	a.marking--
	a.mu.Unlock()
}

// apply runs mutate under mu and publishes the feed if it reports a change.
func (a *NotificationAggregator) apply(mutate func() bool) bool {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	a.mu.Lock()
	changed := mutate()
	feed := a.snapshotLocked()
	a.mu.Unlock()

	if changed {
		a.onChange(feed)
	}
	return changed
}

func (a *NotificationAggregator) snapshotLocked() NotificationFeed {
	return NotificationFeed{
		Notifications: append([]entity.Notification{}, a.feed...),
		UnreadCount:   len(a.feed),
		RefreshedAt:   a.refreshedAt,
	}
}

func (a *NotificationAggregator) Feed() NotificationFeed {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// LastError is the error of the most recent failed poll, cleared by the next
// successful one.
func (a *NotificationAggregator) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}
