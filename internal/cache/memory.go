// Package cache holds converted wire conversations per chat, bounded by a
// time-to-live, plus the per-chat lock registry that serializes runs.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// ErrClosed is returned by a cache that has been closed.
var ErrClosed = errors.New("cache closed")

type entry struct {
	messages  []schema.WireMessage
	expiresAt time.Time // zero = never
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is an in-process ConversationCache. Expired entries are invisible
// to Get immediately and are reclaimed by Purge.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
	closed  bool
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns a copy of the cached conversation for chatID.
func (m *Memory) Get(_ context.Context, chatID string) ([]schema.WireMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}

	e, ok := m.entries[chatID]
	if !ok {
		return nil, false, nil
	}
	if e.expired(m.now()) {
		delete(m.entries, chatID)
		return nil, false, nil
	}
	return cloneMessages(e.messages), true, nil
}

// Set replaces the conversation for chatID. A ttl <= 0 never expires.
func (m *Memory) Set(_ context.Context, chatID string, msgs []schema.WireMessage, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	e := entry{messages: cloneMessages(msgs)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[chatID] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.entries, chatID)
	return nil
}

// Purge drops every expired entry and reports how many were removed.
func (m *Memory) Purge(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}

	now := m.now()
	n := 0
	for id, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	return nil
}

// cloneMessages copies the slice so callers can append without touching
// the stored conversation. Entries themselves are shared; they are never
// mutated once appended.
func cloneMessages(msgs []schema.WireMessage) []schema.WireMessage {
	if msgs == nil {
		return nil
	}
	out := make([]schema.WireMessage, len(msgs))
	copy(out, msgs)
	return out
}
