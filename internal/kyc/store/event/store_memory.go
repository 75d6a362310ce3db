// Package event is the append-only access log.
package event

import (
	"context"
	"sync"

	"kycvault/internal/kyc/models"
)

// InMemoryStore keeps events per subject in append order. Entries are never
// modified or removed.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]models.Event
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]models.Event)}
}

func (s *InMemoryStore) Append(ctx context.Context, e models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.Subject] = append(s.events[e.Subject], e)
	return nil
}

// ListBySubject returns the subject's events in append order. With kinds set,
// only events of those kinds are returned.
func (s *InMemoryStore) ListBySubject(ctx context.Context, subject string, kinds ...models.EventKind) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Event, 0, len(s.events[subject]))
	for _, e := range s.events[subject] {
		if matchesKind(e.Kind, kinds) {
			out = append(out, e)
		}
	}
	return out, nil
}

func matchesKind(k models.EventKind, kinds []models.EventKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}
