package cache

import "sync"

// Locks serializes orchestration runs per chat while letting different chats
// proceed concurrently. Idle chat locks are released from the registry.
type Locks struct {
	mu    sync.Mutex
	chats map[string]*chatLock
}

type chatLock struct {
	mu   sync.Mutex
	refs int // holders plus waiters
}

func NewLocks() *Locks {
	return &Locks{chats: make(map[string]*chatLock)}
}

// Acquire blocks until chatID is free and returns the release func.
func (l *Locks) Acquire(chatID string) (release func()) {
	l.mu.Lock()
	cl, ok := l.chats[chatID]
	if !ok {
		cl = &chatLock{}
		l.chats[chatID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			cl.mu.Unlock()
			l.mu.Lock()
			cl.refs--
			if cl.refs == 0 {
				delete(l.chats, chatID)
			}
			l.mu.Unlock()
		})
	}
}

// Busy reports whether a run for chatID is in progress or queued.
func (l *Locks) Busy(chatID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.chats[chatID]
	return ok
}
