// Package livequery runs push-style result-set streams behind a handle that
// can be stopped without racing the delivery goroutine.
package livequery

import (
	"context"
	"sync"
)

// Source produces full result sets until ctx is cancelled. It calls emit once
// per result set and returns an error only when the stream breaks.
type Source[T any] func(ctx context.Context, emit func(T)) error

// Subscription delivers a Source to its callbacks from a single goroutine.
// Callbacks never run concurrently with each other and never run after Stop
// has returned. Stop must not be called from inside a callback.
type Subscription struct {
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	stopped bool
}

func Watch[T any](parent context.Context, source Source[T], onChange func(T), onError func(error)) *Subscription {
	ctx, cancel := context.WithCancel(parent)
	s := &Subscription{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		err := source(ctx, func(v T) {
			s.deliver(func() { onChange(v) })
		})
		if err != nil && ctx.Err() == nil && onError != nil {
			s.deliver(func() { onError(err) })
		}
	}()

	return s
}

func (s *Subscription) deliver(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	fn()
}

// Stop cancels the source and waits for an in-flight callback to finish.
func (s *Subscription) Stop() {
	s.cancel()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// Done is closed once the source goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
