package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// SQLite is a ConversationCache that survives restarts. Conversations are
// stored as JSON, so wire entries come back as plain maps and slices.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (creating if needed) the cache database at path.
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS conversation_cache (
		chat_id    TEXT PRIMARY KEY,
		messages   TEXT NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversation_cache_expires ON conversation_cache(expires_at);
	`)
	return err
}

func (s *SQLite) Get(ctx context.Context, chatID string) ([]schema.WireMessage, bool, error) {
	var (
		raw       string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT messages, expires_at FROM conversation_cache WHERE chat_id = ?`,
		chatID,
	).Scan(&raw, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", chatID, err)
	}

	if expiresAt > 0 && s.now().UnixMilli() >= expiresAt {
		if err := s.Delete(ctx, chatID); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	var msgs []schema.WireMessage
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", chatID, err)
	}
	return msgs, true, nil
}

func (s *SQLite) Set(ctx context.Context, chatID string, msgs []schema.WireMessage, ttl time.Duration) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode %s: %w", chatID, err)
	}

	now := s.now()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = now.Add(ttl).UnixMilli()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_cache (chat_id, messages, expires_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (chat_id) DO UPDATE
		 SET messages = excluded.messages, expires_at = excluded.expires_at, updated_at = excluded.updated_at`,
		chatID, string(data), expiresAt, now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", chatID, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, chatID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_cache WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", chatID, err)
	}
	return nil
}

// Purge drops every expired row and reports how many were removed.
func (s *SQLite) Purge(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_cache WHERE expires_at > 0 AND expires_at <= ?`,
		s.now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}
