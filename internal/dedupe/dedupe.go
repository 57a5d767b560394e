// Package dedupe remembers which webhook events have already been handled.
package dedupe

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long an event id is remembered. Processors stop
// redelivering well within this window.
const DefaultTTL = 72 * time.Hour

// Memory is an in-process deduper for single-instance deployments and tests
type Memory struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemory creates an in-process deduper
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

// FirstSeen records key and reports whether it was new
func (m *Memory) FirstSeen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expires, ok := m.seen[key]; ok && now.Before(expires) {
		return false, nil
	}
	m.seen[key] = now.Add(m.ttl)
	m.evictExpired(now)
	return true, nil
}

// Forget drops key so a later delivery is processed again
func (m *Memory) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, key)
	return nil
}

func (m *Memory) evictExpired(now time.Time) {
	for k, expires := range m.seen {
		if !now.Before(expires) {
			delete(m.seen, k)
		}
	}
}
