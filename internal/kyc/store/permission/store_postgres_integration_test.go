//go:build integration

package permission_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"kycvault/internal/kyc/models"
	"kycvault/internal/kyc/store/permission"
	"kycvault/pkg/platform/sentinel"
	"kycvault/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *permission.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = permission.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "access_permissions"))
}

func (s *PostgresStoreSuite) request(subject, requester string) *models.Permission {
	p, err := models.NewPermission(uuid.New(), subject, requester, "req-"+requester, time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	s.Require().NoError(s.store.Request(context.Background(), p))
	return p
}

func (s *PostgresStoreSuite) TestRequestUpsertResetsState() {
	ctx := context.Background()
	s.request("0xS", "0xB")

	_, err := s.store.Execute(ctx, "0xS", "0xB",
		func(p *models.Permission) error { return p.CanGrant() },
		func(p *models.Permission) { p.ApplyGrant(time.Now().UTC()) },
	)
	s.Require().NoError(err)

	second := s.request("0xS", "0xB")
	got, err := s.store.Get(ctx, "0xS", "0xB")
	s.Require().NoError(err)
	s.Equal(second.ID, got.ID)
	s.Equal(models.PermissionStatusPending, got.Status)
	s.Nil(got.ApprovedAt)
}

func (s *PostgresStoreSuite) TestGetMissing() {
	_, err := s.store.Get(context.Background(), "0xS", "0xNobody")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.Execute(context.Background(), "0xS", "0xNobody",
		func(*models.Permission) error { return nil },
		func(*models.Permission) {},
	)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentGrantSucceedsOnce verifies FOR UPDATE serialises the
// validate-then-mutate across connections.
func (s *PostgresStoreSuite) TestConcurrentGrantSucceedsOnce() {
	ctx := context.Background()
	s.request("0xS", "0xB")

	const goroutines = 20
	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(ctx, "0xS", "0xB",
				func(p *models.Permission) error { return p.CanGrant() },
				func(p *models.Permission) { p.ApplyGrant(time.Now().UTC()) },
			)
			if err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()
	s.EqualValues(1, succeeded.Load())
}

func (s *PostgresStoreSuite) TestListBySubject() {
	s.request("0xS", "0xB1")
	s.request("0xS", "0xB2")
	s.request("0xOther", "0xB1")

	list, err := s.store.ListBySubject(context.Background(), "0xS")
	s.Require().NoError(err)
	s.Len(list, 2)
}
