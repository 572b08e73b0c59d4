package eventqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/trendwatch/pkg/event"
	"github.com/dmitrymomot/trendwatch/pkg/logger"
)

// EventStore is the durable sink for raw events.
type EventStore interface {
	// InsertEvents bulk-inserts a batch of events.
	InsertEvents(ctx context.Context, events []event.Event) error
}

// Processor consumes events after their batch has been durably persisted.
// A processor error affects only that event; the rest of the batch proceeds.
type Processor interface {
	ProcessEvent(ctx context.Context, ev event.Event) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, ev event.Event) error

func (f ProcessorFunc) ProcessEvent(ctx context.Context, ev event.Event) error {
	return f(ctx, ev)
}

// Queue is a bounded batching buffer with retrying flush.
// All methods are safe for concurrent use.
type Queue struct {
	store     EventStore
	processor Processor
	log       *slog.Logger
	cfg       Config

	mu      sync.Mutex
	buffer  []event.Event
	timer   *time.Timer
	closed  bool
	dropped uint64

	flushing atomic.Bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithProcessor sets the post-persist event consumer.
func WithProcessor(p Processor) Option {
	return func(q *Queue) {
		q.processor = p
	}
}

// WithLogger sets the logger for the queue.
func WithLogger(log *slog.Logger) Option {
	return func(q *Queue) {
		if log != nil {
			q.log = log
		}
	}
}

// New creates an event queue flushing into store.
func New(store EventStore, cfg Config, opts ...Option) (*Queue, error) {
	if store == nil {
		return nil, ErrStoreNil
	}

	q := &Queue{
		store: store,
		cfg:   cfg.withDefaults(),
		log:   slog.Default(),
	}
	q.buffer = make([]event.Event, 0, q.cfg.Capacity)

	for _, opt := range opts {
		opt(q)
	}

	return q, nil
}

// Enqueue appends an event to the buffer. At capacity the oldest buffered
// event is dropped first. The first event buffered after an idle period
// schedules a flush in FlushInterval; reaching FlushThreshold triggers an
// immediate one.
func (q *Queue) Enqueue(ctx context.Context, ev event.Event) error {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}

	if len(q.buffer) >= q.cfg.Capacity {
		evicted := q.buffer[0]
		q.buffer = q.buffer[1:]
		q.dropped++
		q.log.WarnContext(ctx, "event queue full, dropping oldest event",
			logger.EventType(string(evicted.Type)),
			slog.String("event_id", evicted.ID),
			slog.Uint64("total_dropped", q.dropped),
		)
	}
	q.buffer = append(q.buffer, ev)

	sizeTriggered := len(q.buffer) >= q.cfg.FlushThreshold
	if !sizeTriggered && q.timer == nil {
		q.timer = time.AfterFunc(q.cfg.FlushInterval, func() {
			q.mu.Lock()
			q.timer = nil
			q.mu.Unlock()
			if err := q.Flush(context.Background()); err != nil && !errors.Is(err, ErrFlushInProgress) {
				q.log.Error("scheduled flush failed", logger.Error(err))
			}
		})
	}
	q.mu.Unlock()

	if sizeTriggered {
		go func() {
			if err := q.Flush(context.Background()); err != nil && !errors.Is(err, ErrFlushInProgress) {
				q.log.Error("size-triggered flush failed", logger.Error(err))
			}
		}()
	}

	return nil
}

// Flush snapshots the buffer, persists it with retries, and hands each
// persisted event to the processor in enqueue order. Only one flush runs at
// a time; a concurrent call returns ErrFlushInProgress and the buffered
// events wait for the next cycle.
func (q *Queue) Flush(ctx context.Context) error {
	if !q.flushing.CompareAndSwap(false, true) {
		q.scheduleNext()
		return ErrFlushInProgress
	}
	defer q.flushing.Store(false)

	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	snapshot := q.buffer
	q.buffer = make([]event.Event, 0, q.cfg.Capacity)
	q.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	if err := q.persistWithRetry(ctx, snapshot); err != nil {
		q.requeue(snapshot)
		return err
	}

	for _, ev := range snapshot {
		if q.processor == nil {
			continue
		}
		if err := q.processor.ProcessEvent(ctx, ev); err != nil {
			q.log.ErrorContext(ctx, "event processing failed",
				logger.EventType(string(ev.Type)),
				slog.String("event_id", ev.ID),
				logger.Error(err),
			)
		}
	}

	return nil
}

// persistWithRetry attempts the bulk insert, backing off exponentially
// between attempts. The backoff waits on a timer so concurrent enqueue and
// subscribe paths are never blocked.
func (q *Queue) persistWithRetry(ctx context.Context, events []event.Event) error {
	for attempt := 0; ; attempt++ {
		err := q.store.InsertEvents(ctx, events)
		if err == nil {
			if attempt > 0 {
				q.log.InfoContext(ctx, "event batch persisted after retries",
					slog.Int("batch_size", len(events)),
					logger.RetryCount(attempt),
				)
			}
			return nil
		}

		if attempt >= q.cfg.MaxRetries {
			q.log.ErrorContext(ctx, "event batch persist exhausted retries",
				slog.Int("batch_size", len(events)),
				logger.RetryCount(attempt),
				logger.Error(err),
			)
			return errors.Join(ErrPersistFailed, err)
		}

		delay := q.cfg.BaseDelay << attempt
		q.log.WarnContext(ctx, "event batch persist failed, retrying",
			slog.Int("batch_size", len(events)),
			logger.RetryCount(attempt),
			slog.Duration("retry_in", delay),
			logger.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ErrPersistFailed, ctx.Err())
		case <-timer.C:
		}
	}
}

// requeue merges a failed snapshot back ahead of newer events so ordering is
// preserved for the next flush, clamping to capacity by dropping the oldest.
func (q *Queue) requeue(snapshot []event.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	merged := make([]event.Event, 0, len(snapshot)+len(q.buffer))
	merged = append(merged, snapshot...)
	merged = append(merged, q.buffer...)

	if overflow := len(merged) - q.cfg.Capacity; overflow > 0 {
		merged = merged[overflow:]
		q.dropped += uint64(overflow)
		q.log.Warn("requeue overflow, dropping oldest events",
			slog.Int("dropped", overflow),
			slog.Uint64("total_dropped", q.dropped),
		)
	}
	q.buffer = merged
}

// scheduleNext arms the flush timer if the queue is open and no timer is
// pending. Used when a flush request lost the single-flight race.
func (q *Queue) scheduleNext() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.timer != nil || len(q.buffer) == 0 {
		return
	}
	q.timer = time.AfterFunc(q.cfg.FlushInterval, func() {
		q.mu.Lock()
		q.timer = nil
		q.mu.Unlock()
		if err := q.Flush(context.Background()); err != nil && !errors.Is(err, ErrFlushInProgress) {
			q.log.Error("scheduled flush failed", logger.Error(err))
		}
	})
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffer)
}

// Dropped returns the total number of events dropped since creation.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close stops intake and drains the buffer with a final flush, waiting for
// any in-flight flush to finish first. Enqueue after Close returns
// ErrQueueClosed.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.mu.Unlock()

	for {
		err := q.Flush(ctx)
		if !errors.Is(err, ErrFlushInProgress) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}
