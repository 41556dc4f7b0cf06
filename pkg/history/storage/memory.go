package storage

import (
	"context"
	"sort"
	"sync"

	"relaydesk/relay/pkg/history"
)

// MemoryStorage implements history.Storage in process memory. Events are
// lost on restart.
type MemoryStorage struct {
	events map[string]*history.Event
	mu     sync.RWMutex
	closed bool
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		events: make(map[string]*history.Event),
	}
}

// Store persists a copy of event.
func (s *MemoryStorage) Store(ctx context.Context, event *history.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return history.NewStorageError("memory", "store", errClosed)
	}
	s.events[event.ID] = copyEvent(event)
	return nil
}

// Query retrieves events matching the query filters.
func (s *MemoryStorage) Query(ctx context.Context, query *history.Query) ([]*history.Event, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, history.NewStorageError("memory", "query", errClosed)
	}
	results := make([]*history.Event, 0, len(s.events))
	for _, event := range s.events {
		if query.Matches(event) {
			results = append(results, copyEvent(event))
		}
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !query.Ascending() {
			a, b = b, a
		}
		if a.Time.Equal(b.Time) {
			return a.ID < b.ID
		}
		return a.Time.Before(b.Time)
	})

	if query.Offset >= len(results) {
		return []*history.Event{}, nil
	}
	results = results[query.Offset:]
	if limit := query.EffectiveLimit(); len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Count returns the number of events matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, query *history.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, history.NewStorageError("memory", "count", errClosed)
	}
	var count int64
	for _, event := range s.events {
		if query.Matches(event) {
			count++
		}
	}
	return count, nil
}

// Delete removes events matching the query filters.
func (s *MemoryStorage) Delete(ctx context.Context, query *history.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, history.NewStorageError("memory", "delete", errClosed)
	}
	var count int64
	for id, event := range s.events {
		if query.Matches(event) {
			delete(s.events, id)
			count++
		}
	}
	return count, nil
}

// Ping reports an error once the storage is closed.
func (s *MemoryStorage) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return history.NewStorageError("memory", "ping", errClosed)
	}
	return nil
}

// Close releases the stored events.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.events = make(map[string]*history.Event)
	return nil
}

func copyEvent(e *history.Event) *history.Event {
	c := *e
	if e.Config != nil {
		cfg := *e.Config
		c.Config = &cfg
	}
	return &c
}
