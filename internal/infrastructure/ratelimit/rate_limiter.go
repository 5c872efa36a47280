package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ActionSendMessage = "send_message"
	ActionOpenChat    = "open_chat"
	ActionAuth        = "auth"
	ActionUpload      = "upload"
)

// Policy is a token bucket: Burst tokens, one token refilled every Every.
type Policy struct {
	Burst int
	Every time.Duration
}

var defaultPolicies = map[string]Policy{
	// 10 messages per minute
	ActionSendMessage: {Burst: 10, Every: 6 * time.Second},
	ActionOpenChat:    {Burst: 30, Every: 2 * time.Second},
	// 5 attempts per minute per IP
	ActionAuth:   {Burst: 5, Every: 12 * time.Second},
	ActionUpload: {Burst: 10, Every: 6 * time.Second},
}

var fallbackPolicy = Policy{Burst: 20, Every: 3 * time.Second}

type bucket struct {
	limiter  *rate.Limiter
	burst    int
	lastSeen time.Time
}

// RateLimiter keeps one bucket per key and action.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	policies map[string]Policy
}

func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithPolicies(nil)
}

// NewRateLimiterWithPolicies overrides the default policy of the given actions.
func NewRateLimiterWithPolicies(overrides map[string]Policy) *RateLimiter {
	policies := make(map[string]Policy, len(defaultPolicies)+len(overrides))
	for action, p := range defaultPolicies {
		policies[action] = p
	}
	for action, p := range overrides {
		policies[action] = p
	}
	return &RateLimiter{
		buckets:  make(map[string]*bucket),
		policies: policies,
	}
}

func (rl *RateLimiter) bucketFor(key, action string) *bucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	id := key + ":" + action
	b, ok := rl.buckets[id]
	if !ok {
		p, found := rl.policies[action]
		if !found {
			p = fallbackPolicy
		}
		b = &bucket{
			limiter: rate.NewLimiter(rate.Every(p.Every), p.Burst),
			burst:   p.Burst,
		}
		rl.buckets[id] = b
	}
	b.lastSeen = time.Now()
	return b
}

// Allow consumes a token for key/action. When none is available it reports
// how long until the next one.
func (rl *RateLimiter) Allow(key, action string) (bool, time.Duration) {
	b := rl.bucketFor(key, action)

	r := b.limiter.Reserve()
	if !r.OK() {
		return false, 0
	}
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return false, delay
	}
	return true, 0
}

// GetStatus returns the tokens currently available for key/action.
func (rl *RateLimiter) GetStatus(key, action string) (tokens int, maxTokens int) {
	rl.mu.Lock()
	b, ok := rl.buckets[key+":"+action]
	rl.mu.Unlock()
	if !ok {
		return 0, 0
	}
	return int(b.limiter.Tokens()), b.burst
}

// Cleanup drops buckets idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for id, b := range rl.buckets {
		if now.Sub(b.lastSeen) > maxIdle {
			delete(rl.buckets, id)
		}
	}
}

// StartCleanupRoutine runs Cleanup every 30 minutes until ctx is done.
func (rl *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			}
		}
	}()
}
