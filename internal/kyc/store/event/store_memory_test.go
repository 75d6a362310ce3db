package event

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kycvault/internal/kyc/models"
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

func (s *InMemoryStoreSuite) TestAppendPreservesOrder() {
	now := time.Now().UTC()
	kinds := []models.EventKind{models.EventUpload, models.EventAccessRequested, models.EventAccessGranted, models.EventKYCApproved}
	for _, k := range kinds {
		s.Require().NoError(s.store.Append(s.ctx, models.NewEvent(k, "0xS", "0xB", "", now)))
	}
	s.Require().NoError(s.store.Append(s.ctx, models.NewEvent(models.EventUpload, "0xOther", "", "", now)))

	events, err := s.store.ListBySubject(s.ctx, "0xS")
	s.Require().NoError(err)
	s.Require().Len(events, len(kinds))
	for i, k := range kinds {
		s.Equal(k, events[i].Kind)
	}
}

func (s *InMemoryStoreSuite) TestListFiltersByKind() {
	now := time.Now().UTC()
	s.Require().NoError(s.store.Append(s.ctx, models.NewEvent(models.EventUpload, "0xS", "", "Qm1", now)))
	s.Require().NoError(s.store.Append(s.ctx, models.NewEvent(models.EventAccessRequested, "0xS", "0xB", "", now)))
	s.Require().NoError(s.store.Append(s.ctx, models.NewEvent(models.EventUpload, "0xS", "", "Qm2", now)))

	uploads, err := s.store.ListBySubject(s.ctx, "0xS", models.EventUpload)
	s.Require().NoError(err)
	s.Require().Len(uploads, 2)
	s.Equal("Qm1", uploads[0].Reference)
	s.Equal("Qm2", uploads[1].Reference)

	both, err := s.store.ListBySubject(s.ctx, "0xS", models.EventUpload, models.EventAccessRequested)
	s.Require().NoError(err)
	s.Len(both, 3)
}

func (s *InMemoryStoreSuite) TestListUnknownSubjectIsEmpty() {
	events, err := s.store.ListBySubject(s.ctx, "0xNobody")
	s.Require().NoError(err)
	s.NotNil(events)
	s.Empty(events)
}

func (s *InMemoryStoreSuite) TestListReturnsSnapshot() {
	s.Require().NoError(s.store.Append(s.ctx, models.NewEvent(models.EventUpload, "0xS", "", "", time.Now())))
	events, err := s.store.ListBySubject(s.ctx, "0xS")
	s.Require().NoError(err)
	events[0].Kind = models.EventKYCRejected

	again, _ := s.store.ListBySubject(s.ctx, "0xS")
	s.Equal(models.EventUpload, again[0].Kind)
}

func (s *InMemoryStoreSuite) TestConcurrentAppendsAreAllKept() {
	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.store.Append(s.ctx, models.NewEvent(models.EventAccessRequested, "0xS", fmt.Sprintf("0xB%d", i), "", time.Now()))
		}(i)
	}
	wg.Wait()

	events, err := s.store.ListBySubject(s.ctx, "0xS")
	s.Require().NoError(err)
	s.Len(events, writers)
}
