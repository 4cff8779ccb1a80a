package usage

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements UsageStore by appending entries to a Redis stream.
// Stream IDs carry the append time in milliseconds, so retention trims with
// XTRIM MINID instead of a DELETE query.
type RedisStore struct {
	client        *redis.Client
	stream        string
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewRedisStore writes to stream and starts the trim loop when retentionDays > 0.
func NewRedisStore(client *redis.Client, stream string, retentionDays int) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if stream == "" {
		return nil, fmt.Errorf("stream name is required")
	}

	store := &RedisStore{
		client:        client,
		stream:        stream,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}
	if retentionDays > 0 {
		go runCleanupLoop(store.stopCleanup, store.cleanup)
	}
	return store, nil
}

// WriteBatch pipelines one XADD per entry.
func (s *RedisStore) WriteBatch(ctx context.Context, entries []*UsageEntry) error {
	if len(entries) == 0 {
		return nil
	}

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: s.stream,
				Values: streamValues(e),
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append %d usage entries to %s: %w", len(entries), s.stream, err)
	}
	return nil
}

func streamValues(e *UsageEntry) map[string]any {
	return map[string]any{
		"id":            e.ID,
		"request_id":    e.RequestID,
		"provider_id":   e.ProviderID,
		"timestamp":     e.Timestamp.UTC().Format(time.RFC3339Nano),
		"model":         e.Model,
		"provider":      e.Provider,
		"endpoint":      e.Endpoint,
		"input_tokens":  e.InputTokens,
		"output_tokens": e.OutputTokens,
		"total_tokens":  e.TotalTokens,
	}
}

// Flush is a no-op; writes are synchronous.
func (s *RedisStore) Flush(context.Context) error {
	return nil
}

// Close stops the trim loop. The client belongs to the storage layer.
func (s *RedisStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

func (s *RedisStore) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	minID := strconv.FormatInt(retentionCutoff(time.Now(), s.retentionDays).UnixMilli(), 10)
	n, err := s.client.XTrimMinID(ctx, s.stream, minID).Result()
	if err != nil {
		slog.Error("failed to trim usage stream", "stream", s.stream, "error", err)
		return
	}
	if n > 0 {
		slog.Info("cleaned up old usage entries", "deleted", n)
	}
}
