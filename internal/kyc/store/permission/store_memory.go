// Package permission persists access permissions keyed by (subject, requester).
package permission

import (
	"context"
	"sort"
	"sync"

	"kycvault/internal/kyc/models"
	"kycvault/pkg/platform/sentinel"
)

type key struct {
	subject   string
	requester string
}

type InMemoryStore struct {
	mu          sync.RWMutex
	permissions map[key]*models.Permission
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{permissions: make(map[key]*models.Permission)}
}

// Request stores p, replacing any permission the pair already held.
func (s *InMemoryStore) Request(ctx context.Context, p *models.Permission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions[key{p.Subject, p.Requester}] = p.Clone()
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, subject, requester string) (*models.Permission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.permissions[key{subject, requester}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

// Delete removes the pair's permission. Deleting a missing permission is not an error.
func (s *InMemoryStore) Delete(ctx context.Context, subject, requester string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.permissions, key{subject, requester})
	return nil
}

// Execute validates and mutates a copy of the permission under the write lock.
func (s *InMemoryStore) Execute(ctx context.Context, subject, requester string, validate func(*models.Permission) error, mutate func(*models.Permission)) (*models.Permission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{subject, requester}
	current, ok := s.permissions[k]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	next := current.Clone()
	if err := validate(next); err != nil {
		return nil, err
	}
	mutate(next)
	s.permissions[k] = next
	return next.Clone(), nil
}

// ListBySubject returns the subject's permissions, oldest request first.
func (s *InMemoryStore) ListBySubject(ctx context.Context, subject string) ([]*models.Permission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Permission, 0)
	for k, p := range s.permissions {
		if k.subject == subject {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.Before(out[j].RequestedAt)
		}
		return out[i].Requester < out[j].Requester
	})
	return out, nil
}
