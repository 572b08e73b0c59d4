package notification

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation.
// Suitable for development, testing, and single-node deployments.
type MemoryStore struct {
	mu            sync.RWMutex
	notifications map[string][]Notification // userID -> notifications
	preferences   map[string]Preferences    // userID -> preferences
}

// NewMemoryStore creates an empty in-memory notification store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notifications: make(map[string][]Notification),
		preferences:   make(map[string]Preferences),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, n Notification) (string, error) {
	if n.ID == "" {
		return "", ErrMissingID
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications[n.UserID] = append(s.notifications[n.UserID], n)
	return n.ID, nil
}

func (s *MemoryStore) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.notifications[userID]
	filtered := make([]Notification, 0, len(stored))
	for _, n := range stored {
		if !opts.IncludeRead && n.Read {
			continue
		}
		filtered = append(filtered, n)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	if opts.Offset >= len(filtered) {
		return []Notification{}, nil
	}
	filtered = filtered[opts.Offset:]

	if opts.Limit > 0 && opts.Limit < len(filtered) {
		filtered = filtered[:opts.Limit]
	}

	// Copy so callers cannot mutate stored data through the returned slice.
	out := make([]Notification, len(filtered))
	copy(out, filtered)
	return out, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.notifications[userID]
	for i := range stored {
		if stored[i].ID == id {
			stored[i].Read = true
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	stored := s.notifications[userID]
	for i := range stored {
		if !stored[i].Read {
			stored[i].Read = true
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.notifications[userID]
	for i := range stored {
		if stored[i].ID == id {
			s.notifications[userID] = append(stored[:i], stored[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CountUnread(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications[userID] {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) GetPreferences(ctx context.Context, userID string) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefs, ok := s.preferences[userID]
	if !ok {
		return Preferences{}, nil
	}

	out := make(Preferences, len(prefs))
	for k, v := range prefs {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) SetPreferences(ctx context.Context, userID string, prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make(Preferences, len(prefs))
	for k, v := range prefs {
		stored[k] = v
	}
	s.preferences[userID] = stored
	return nil
}
