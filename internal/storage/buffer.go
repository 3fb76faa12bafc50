package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cristim67/audio-analysis-platform/internal/data"
)

// BatchWriter is the persistence contract the buffer flushes into.
// *Store satisfies it; tests substitute fakes.
type BatchWriter interface {
	BatchInsert(ctx context.Context, events []data.SensorEvent) (int, error)
}

// Buffer is the write-behind telemetry buffer: a bounded ring of the
// most recent events for dashboard replay, plus a pending queue
// awaiting persistence. The pending queue is drained only by an
// atomic capture-and-clear; events added during an in-flight write
// land in the next batch, never duplicated and never lost.
//
// Durability is best-effort: a failed batch write is logged and
// discarded so the next flush cycle starts clean.
type Buffer struct {
	mu      sync.Mutex
	recent  []data.SensorEvent
	pending []data.SensorEvent

	capacity  int
	threshold int
	store     BatchWriter
	logger    zerolog.Logger

	// flushCh wakes the Run loop for threshold and on-demand
	// flushes. Capacity 1: repeated signals collapse.
	flushCh chan struct{}
}

func NewBuffer(store BatchWriter, capacity, threshold int, logger zerolog.Logger) *Buffer {
	return &Buffer{
		recent:    make([]data.SensorEvent, 0, capacity),
		capacity:  capacity,
		threshold: threshold,
		store:     store,
		logger:    logger,
		flushCh:   make(chan struct{}, 1),
	}
}

// Add appends an event to the recent ring (evicting the oldest at
// capacity) and the pending queue. Crossing the flush threshold
// signals an asynchronous flush; Add itself never blocks on the
// store.
func (b *Buffer) Add(ev data.SensorEvent) {
	b.mu.Lock()
	if len(b.recent) >= b.capacity {
		b.recent = b.recent[1:]
	}
	b.recent = append(b.recent, ev)
	b.pending = append(b.pending, ev)
	full := len(b.pending) >= b.threshold
	b.mu.Unlock()

	if full {
		b.TriggerFlush()
	}
}

// TriggerFlush asks the Run loop for an immediate flush. Non-blocking;
// a no-op when a signal is already queued or Run is not active.
func (b *Buffer) TriggerFlush() {
	select {
	case b.flushCh <- struct{}{}:
	default:
	}
}

// Flush atomically captures and empties the pending queue, then
// issues one batch write. Store errors discard the captured batch.
func (b *Buffer) Flush(ctx context.Context) {
	b.mu.Lock()
	captured := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(captured) == 0 {
		return
	}

	inserted, err := b.store.BatchInsert(ctx, captured)
	if err != nil {
		b.logger.Error().Err(err).Int("dropped", len(captured)).Msg("batch write failed, discarding batch")
		return
	}
	b.logger.Debug().Int("count", inserted).Msg("flushed events to store")
}

// Run drives periodic and signaled flushes until ctx is cancelled,
// then performs a final flush so shutdown loses as little as
// possible.
func (b *Buffer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			b.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			b.Flush(ctx)
		case <-b.flushCh:
			b.Flush(ctx)
		}
	}
}

// Latest returns up to n of the most recent events, oldest first,
// without mutating buffer state.
func (b *Buffer) Latest(n int) []data.SensorEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > len(b.recent) {
		n = len(b.recent)
	}
	out := make([]data.SensorEvent, n)
	copy(out, b.recent[len(b.recent)-n:])
	return out
}

// Len reports the recent ring occupancy.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.recent)
}

// PendingLen reports how many events await persistence.
func (b *Buffer) PendingLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
