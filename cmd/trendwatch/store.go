package main

import (
	"context"
	"sync"

	"github.com/dmitrymomot/trendwatch/pkg/event"
)

const defaultMemoryEventCap = 10000

// memoryEventStore is the development event sink: a bounded ring that
// keeps the most recent events so the pipeline runs without a database.
type memoryEventStore struct {
	mu     sync.Mutex
	events []event.Event
	cap    int
}

func newMemoryEventStore(capacity int) *memoryEventStore {
	if capacity <= 0 {
		capacity = defaultMemoryEventCap
	}
	return &memoryEventStore{cap: capacity}
}

func (s *memoryEventStore) InsertEvents(ctx context.Context, events []event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	if overflow := len(s.events) - s.cap; overflow > 0 {
		s.events = append(s.events[:0:0], s.events[overflow:]...)
	}
	return nil
}
