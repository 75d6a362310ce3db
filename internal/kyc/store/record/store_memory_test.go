package record

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kycvault/internal/kyc/fingerprint"
	"kycvault/internal/kyc/models"
	dErrors "kycvault/pkg/domain-errors"
	"kycvault/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func newRecord(subject, body string) *models.Record {
	r, _ := models.NewRecord(subject, models.Document{
		Type:      models.DocumentTypeIdentity,
		Hash:      fingerprint.Fingerprint([]byte(body)),
		ContentID: "Qm" + body,
	}, time.Now().UTC())
	return r
}

func (s *InMemoryStoreSuite) TestPutGet() {
	r := newRecord("0xS", "doc-A")
	s.Require().NoError(s.store.Put(s.ctx, r))

	got, err := s.store.Get(s.ctx, "0xS")
	s.Require().NoError(err)
	s.Equal(r, got)
}

func (s *InMemoryStoreSuite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, "0xNobody")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestPutOverwrites() {
	s.Require().NoError(s.store.Put(s.ctx, newRecord("0xS", "doc-A")))
	s.Require().NoError(s.store.Put(s.ctx, newRecord("0xS", "doc-B")))

	got, err := s.store.Get(s.ctx, "0xS")
	s.Require().NoError(err)
	s.Equal(fingerprint.Fingerprint([]byte("doc-B")), got.ContentHash)
}

func (s *InMemoryStoreSuite) TestReturnedValuesAreCopies() {
	r := newRecord("0xS", "doc-A")
	s.Require().NoError(s.store.Put(s.ctx, r))
	r.Status = models.RecordStatusRejected

	got, err := s.store.Get(s.ctx, "0xS")
	s.Require().NoError(err)
	s.Equal(models.RecordStatusPending, got.Status)

	got.Status = models.RecordStatusVerified
	again, _ := s.store.Get(s.ctx, "0xS")
	s.Equal(models.RecordStatusPending, again.Status)
}

func (s *InMemoryStoreSuite) TestDelete() {
	s.Require().NoError(s.store.Put(s.ctx, newRecord("0xS", "doc-A")))
	s.Require().NoError(s.store.Delete(s.ctx, "0xS"))
	s.Require().NoError(s.store.Delete(s.ctx, "0xS"))

	_, err := s.store.Get(s.ctx, "0xS")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestExecuteAppliesMutation() {
	s.Require().NoError(s.store.Put(s.ctx, newRecord("0xS", "doc-A")))
	now := time.Now().UTC()

	got, err := s.store.Execute(s.ctx, "0xS",
		func(r *models.Record) error { return r.CanApprove() },
		func(r *models.Record) { r.ApplyApproval("0xB", now) },
	)
	s.Require().NoError(err)
	s.Equal(models.RecordStatusVerified, got.Status)

	stored, _ := s.store.Get(s.ctx, "0xS")
	s.Equal("0xB", stored.VerifiedBy)
}

func (s *InMemoryStoreSuite) TestExecuteValidationFailureLeavesRecord() {
	s.Require().NoError(s.store.Put(s.ctx, newRecord("0xS", "doc-A")))
	mutated := false

	_, err := s.store.Execute(s.ctx, "0xS",
		func(r *models.Record) error { return dErrors.New(dErrors.CodeConflict, "no") },
		func(r *models.Record) { mutated = true },
	)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.False(mutated)

	stored, _ := s.store.Get(s.ctx, "0xS")
	s.Equal(models.RecordStatusPending, stored.Status)
}

func (s *InMemoryStoreSuite) TestExecuteMissing() {
	_, err := s.store.Execute(s.ctx, "0xS",
		func(*models.Record) error { return nil },
		func(*models.Record) {},
	)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestConcurrentApprovalsSucceedOnce() {
	s.Require().NoError(s.store.Put(s.ctx, newRecord("0xS", "doc-A")))

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(s.ctx, "0xS",
				func(r *models.Record) error { return r.CanApprove() },
				func(r *models.Record) { r.ApplyApproval("0xB", time.Now()) },
			)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, succeeded)
}

func (s *InMemoryStoreSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	s.ErrorIs(s.store.Put(ctx, newRecord("0xS", "doc-A")), context.Canceled)
	_, err := s.store.Get(s.ctx, "0xS")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
