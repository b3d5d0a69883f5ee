package dispatch

import (
	"sync"
	"time"
)

// maxMessagesPerWindow caps how many messages one sender may dispatch per
// minute window.
const maxMessagesPerWindow = 100

// RateLimiter enforces the per-sender message budget.
type RateLimiter struct {
	mu      sync.Mutex
	senders map[string]*senderLimit
}

// senderLimit tracks one sender's window.
type senderLimit struct {
	messageCount int
	windowStart  time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		senders: make(map[string]*senderLimit),
	}
}

// Allow reports whether the sender may send another message in the current
// minute window.
func (rl *RateLimiter) Allow(principalID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	limit, exists := rl.senders[principalID]
	if !exists {
		rl.senders[principalID] = &senderLimit{
			messageCount: 1,
			windowStart:  now,
		}
		return true
	}

	if now.Sub(limit.windowStart) >= time.Minute {
		limit.messageCount = 1
		limit.windowStart = now
		return true
	}

	if limit.messageCount >= maxMessagesPerWindow {
		return false
	}

	limit.messageCount++
	return true
}

// Cleanup removes sender entries idle for more than five windows. Call
// periodically to keep the map bounded under principal churn.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for principalID, limit := range rl.senders {
		if now.Sub(limit.windowStart) > 5*time.Minute {
			delete(rl.senders, principalID)
		}
	}
}
