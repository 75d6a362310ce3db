package permission

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"kycvault/internal/kyc/models"
	"kycvault/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	now   time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) request(subject, requester string, at time.Time) *models.Permission {
	p, err := models.NewPermission(uuid.New(), subject, requester, "req", at)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Request(s.ctx, p))
	return p
}

func (s *InMemoryStoreSuite) TestRequestThenGet() {
	p := s.request("0xS", "0xB", s.now)

	got, err := s.store.Get(s.ctx, "0xS", "0xB")
	s.Require().NoError(err)
	s.Equal(p, got)

	_, err = s.store.Get(s.ctx, "0xB", "0xS")
	s.ErrorIs(err, sentinel.ErrNotFound, "pair is ordered")
}

func (s *InMemoryStoreSuite) TestRequestResetsExistingPermission() {
	s.request("0xS", "0xB", s.now)
	_, err := s.store.Execute(s.ctx, "0xS", "0xB",
		func(p *models.Permission) error { return p.CanGrant() },
		func(p *models.Permission) { p.ApplyGrant(s.now) },
	)
	s.Require().NoError(err)

	s.request("0xS", "0xB", s.now.Add(time.Hour))

	got, err := s.store.Get(s.ctx, "0xS", "0xB")
	s.Require().NoError(err)
	s.Equal(models.PermissionStatusPending, got.Status)
	s.Nil(got.ApprovedAt)
}

func (s *InMemoryStoreSuite) TestExecuteMissing() {
	_, err := s.store.Execute(s.ctx, "0xS", "0xB",
		func(*models.Permission) error { return nil },
		func(*models.Permission) {},
	)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestExecuteRejectsIllegalTransition() {
	s.request("0xS", "0xB", s.now)
	grant := func() error {
		_, err := s.store.Execute(s.ctx, "0xS", "0xB",
			func(p *models.Permission) error { return p.CanGrant() },
			func(p *models.Permission) { p.ApplyGrant(s.now) },
		)
		return err
	}
	s.Require().NoError(grant())
	s.Error(grant())
}

func (s *InMemoryStoreSuite) TestListBySubject() {
	s.request("0xS", "0xB2", s.now.Add(time.Minute))
	s.request("0xS", "0xB1", s.now)
	s.request("0xOther", "0xB1", s.now)

	list, err := s.store.ListBySubject(s.ctx, "0xS")
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("0xB1", list[0].Requester)
	s.Equal("0xB2", list[1].Requester)

	empty, err := s.store.ListBySubject(s.ctx, "0xNobody")
	s.Require().NoError(err)
	s.NotNil(empty)
	s.Empty(empty)
}

func (s *InMemoryStoreSuite) TestDelete() {
	s.request("0xS", "0xB", s.now)
	s.Require().NoError(s.store.Delete(s.ctx, "0xS", "0xB"))
	s.Require().NoError(s.store.Delete(s.ctx, "0xS", "0xB"))

	_, err := s.store.Get(s.ctx, "0xS", "0xB")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
