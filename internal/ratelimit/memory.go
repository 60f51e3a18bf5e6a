package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepEvery is how many Take calls pass between full sweeps of idle buckets
const sweepEvery = 1024

type bucket struct {
	times  []time.Time
	window time.Duration
}

// MemoryStore keeps buckets in process memory. Limits are per instance.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	calls   int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*bucket)}
}

// Take implements Store
func (m *MemoryStore) Take(_ context.Context, key string, policy Policy, now time.Time) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls%sweepEvery == 0 {
		m.sweep(now)
	}

	windowStart := now.Add(-policy.Window)

	b := m.buckets[key]
	if b == nil {
		b = &bucket{window: policy.Window}
		m.buckets[key] = b
	}

	// Filter out old requests
	recent := b.times[:0]
	for _, t := range b.times {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}
	b.times = recent
	b.window = policy.Window

	if len(recent) >= policy.Limit {
		retryAfter := recent[0].Add(policy.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	b.times = append(b.times, now)
	return Decision{Allowed: true, Remaining: policy.Limit - len(b.times)}, nil
}

// sweep evicts buckets whose newest entry has left its window
func (m *MemoryStore) sweep(now time.Time) {
	for key, b := range m.buckets {
		if len(b.times) == 0 || !b.times[len(b.times)-1].After(now.Add(-b.window)) {
			delete(m.buckets, key)
		}
	}
}

// Len returns the number of live buckets
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}
