package usage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder accepts usage entries. Implementations must not block the caller.
type Recorder interface {
	Record(entry *UsageEntry)
	Close() error
}

// Logger queues entries on a buffered channel and writes them to a UsageStore
// in batches, either when BatchFlushThreshold is reached or every FlushInterval.
type Logger struct {
	store   UsageStore
	config  Config
	queue   chan *UsageEntry
	done    chan struct{}
	loop    sync.WaitGroup
	dropped atomic.Int64

	// mu guards closed; Record holds it shared while sending.
	mu     sync.RWMutex
	closed bool
}

// NewLogger starts a Logger flushing into store.
func NewLogger(store UsageStore, cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}

	l := &Logger{
		store:  store,
		config: cfg,
		queue:  make(chan *UsageEntry, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	l.loop.Add(1)
	go l.run()
	return l
}

// Record queues entry without blocking. When the queue is full or the logger
// is closed the entry is dropped.
func (l *Logger) Record(entry *UsageEntry) {
	if entry == nil {
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}

	select {
	case l.queue <- entry:
	default:
		l.dropped.Add(1)
		slog.Warn("usage queue full, dropping entry",
			"request_id", entry.RequestID,
			"model", entry.Model,
		)
	}
}

// Dropped reports how many entries were discarded because the queue was full.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// Close drains the queue, writes what is left and closes the store.
// It is safe to call more than once.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	l.loop.Wait()
	return l.store.Close()
}

func (l *Logger) run() {
	defer l.loop.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]*UsageEntry, 0, BatchFlushThreshold)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		l.write(batch)
		batch = make([]*UsageEntry, 0, BatchFlushThreshold)
	}

	for {
		select {
		case entry := <-l.queue:
			batch = append(batch, entry)
			if len(batch) >= BatchFlushThreshold {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-l.done:
			close(l.queue)
			for entry := range l.queue {
				batch = append(batch, entry)
			}
			flush()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := l.store.Flush(ctx); err != nil {
				slog.Error("failed to flush usage store", "error", err)
			}
			cancel()
			return
		}
	}
}

func (l *Logger) write(batch []*UsageEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.store.WriteBatch(ctx, batch); err != nil {
		slog.Error("failed to write usage batch", "error", err, "count", len(batch))
	}
}

// NoopRecorder discards entries; used when usage tracking is disabled.
type NoopRecorder struct{}

// Record does nothing
func (NoopRecorder) Record(*UsageEntry) {}

// Close does nothing
func (NoopRecorder) Close() error { return nil }
