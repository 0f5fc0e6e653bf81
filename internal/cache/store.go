package cache

import (
	"fmt"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// Store is a conversation cache backend with bulk expiry and a lifetime.
type Store interface {
	schema.ConversationCache
	Purger
	Close() error
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQLite)(nil)
)

// Open returns the backend named by backend: "memory" (the default) or
// "sqlite", which stores conversations at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		if path == "" {
			return nil, fmt.Errorf("sqlite cache: path is required")
		}
		s, err := NewSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", backend)
}
