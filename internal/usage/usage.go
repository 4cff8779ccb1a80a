// Package usage records the token usage reported by each relayed completion.
// Entries are buffered and written asynchronously so the request path never
// waits on storage.
package usage

import (
	"context"
	"time"
)

// BatchFlushThreshold is the number of buffered entries that triggers an
// immediate write without waiting for the flush timer.
const BatchFlushThreshold = 100

// UsageStore defines the interface for usage storage backends.
// Implementations must be safe for concurrent use.
type UsageStore interface {
	// WriteBatch writes multiple usage entries to storage.
	// This is called by the Logger when flushing buffered entries.
	WriteBatch(ctx context.Context, entries []*UsageEntry) error

	// Flush forces any pending writes to complete.
	// Called during graceful shutdown.
	Flush(ctx context.Context) error

	// Close releases resources and flushes pending writes.
	Close() error
}

// UsageEntry represents a single token usage record.
type UsageEntry struct {
	// ID is a unique identifier for this usage entry (UUID)
	ID string `json:"id" bson:"_id"`

	// RequestID is the relay request ID (X-Request-ID)
	RequestID string `json:"request_id" bson:"request_id"`

	// ProviderID is the completion service's response ID (e.g. "chatcmpl-abc123")
	ProviderID string `json:"provider_id" bson:"provider_id"`

	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	Model    string `json:"model" bson:"model"`
	Provider string `json:"provider" bson:"provider"`
	Endpoint string `json:"endpoint" bson:"endpoint"`

	InputTokens  int `json:"input_tokens" bson:"input_tokens"`
	OutputTokens int `json:"output_tokens" bson:"output_tokens"`
	TotalTokens  int `json:"total_tokens" bson:"total_tokens"`
}

// Config holds usage tracking configuration
type Config struct {
	Enabled bool

	// BufferSize is the capacity of the in-memory queue; writes beyond it are dropped
	BufferSize int

	// FlushInterval is how often to flush buffered entries
	FlushInterval time.Duration

	// RetentionDays is how long to keep usage data (0 = forever)
	RetentionDays int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 90,
	}
}
