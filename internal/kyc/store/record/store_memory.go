// Package record persists KYC records, one per subject.
package record

import (
	"context"
	"sync"

	"kycvault/internal/kyc/models"
	"kycvault/pkg/platform/sentinel"
)

// InMemoryStore keeps records in a map. Values are copied in and out so
// readers never observe a record that is being mutated.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.Record
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*models.Record)}
}

// Put replaces the subject's record.
func (s *InMemoryStore) Put(ctx context.Context, r *models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.Subject] = r.Clone()
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, subject string) (*models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[subject]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

// Delete removes the subject's record. Deleting a missing record is not an error.
func (s *InMemoryStore) Delete(ctx context.Context, subject string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, subject)
	return nil
}

// Execute runs validate then mutate on a copy of the record while holding the
// write lock, and stores the copy only if validate passes.
func (s *InMemoryStore) Execute(ctx context.Context, subject string, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[subject]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	next := current.Clone()
	if err := validate(next); err != nil {
		return nil, err
	}
	mutate(next)
	s.records[subject] = next
	return next.Clone(), nil
}
