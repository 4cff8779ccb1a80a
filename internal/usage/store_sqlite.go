package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLite allows 999 bound parameters per statement by default
// (SQLITE_MAX_VARIABLE_NUMBER), which caps the rows per INSERT.
const (
	maxSQLiteParams      = 999
	columnsPerUsageEntry = 10
	maxEntriesPerInsert  = maxSQLiteParams / columnsPerUsageEntry
)

// sqliteTimeFormat is fixed width so timestamps compare correctly as text.
const sqliteTimeFormat = "2006-01-02 15:04:05.000000000"

// SQLiteStore implements UsageStore for SQLite databases.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewSQLiteStore creates the chat_usage table if needed and starts the
// retention cleanup loop when retentionDays > 0.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chat_usage (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			model TEXT NOT NULL,
			provider TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat_usage table: %w", err)
	}

	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS idx_chat_usage_timestamp ON chat_usage(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_chat_usage_request_id ON chat_usage(request_id)",
		"CREATE INDEX IF NOT EXISTS idx_chat_usage_model ON chat_usage(model)",
	} {
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &SQLiteStore{
		db:            db,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}
	if retentionDays > 0 {
		go runCleanupLoop(store.stopCleanup, store.cleanup)
	}
	return store, nil
}

// WriteBatch inserts entries with multi-row INSERTs, chunked under the parameter limit.
// Duplicate IDs are ignored.
func (s *SQLiteStore) WriteBatch(ctx context.Context, entries []*UsageEntry) error {
	for start := 0; start < len(entries); start += maxEntriesPerInsert {
		end := min(start+maxEntriesPerInsert, len(entries))
		chunk := entries[start:end]

		placeholders := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*columnsPerUsageEntry)
		for i, e := range chunk {
			placeholders[i] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
			args = append(args,
				e.ID,
				e.RequestID,
				e.ProviderID,
				e.Timestamp.UTC().Format(sqliteTimeFormat),
				e.Model,
				e.Provider,
				e.Endpoint,
				e.InputTokens,
				e.OutputTokens,
				e.TotalTokens,
			)
		}

		query := `INSERT OR IGNORE INTO chat_usage (id, request_id, provider_id, timestamp, model,
			provider, endpoint, input_tokens, output_tokens, total_tokens) VALUES ` +
			strings.Join(placeholders, ",")
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert usage rows %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

// Flush is a no-op; writes are synchronous.
func (s *SQLiteStore) Flush(context.Context) error {
	return nil
}

// Close stops the cleanup loop. The *sql.DB belongs to the storage layer.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

func (s *SQLiteStore) cleanup() {
	cutoff := retentionCutoff(time.Now(), s.retentionDays).Format(sqliteTimeFormat)

	result, err := s.db.Exec("DELETE FROM chat_usage WHERE timestamp < ?", cutoff)
	if err != nil {
		slog.Error("failed to cleanup old usage entries", "error", err)
		return
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		slog.Info("cleaned up old usage entries", "deleted", n)
	}
}
