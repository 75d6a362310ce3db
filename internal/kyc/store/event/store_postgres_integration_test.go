//go:build integration

package event_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kycvault/internal/kyc/models"
	"kycvault/internal/kyc/store/event"
	"kycvault/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *event.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = event.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "kyc_events"))
}

func (s *PostgresStoreSuite) TestAppendAndListInOrder() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	appended := []models.Event{
		models.NewEvent(models.EventUpload, "0xS", "", "QmA", now),
		models.NewEvent(models.EventAccessRequested, "0xS", "0xB", "", now),
		models.NewEvent(models.EventAccessGranted, "0xS", "0xB", "0xtx", now),
	}
	for _, e := range appended {
		s.Require().NoError(s.store.Append(ctx, e))
	}
	s.Require().NoError(s.store.Append(ctx, models.NewEvent(models.EventUpload, "0xOther", "", "", now)))

	events, err := s.store.ListBySubject(ctx, "0xS")
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	for i := range appended {
		s.Equal(appended[i].ID, events[i].ID)
		s.Equal(appended[i].Kind, events[i].Kind)
		s.True(appended[i].Timestamp.Equal(events[i].Timestamp))
	}
}

func (s *PostgresStoreSuite) TestListFiltersByKind() {
	ctx := context.Background()
	now := time.Now().UTC()
	s.Require().NoError(s.store.Append(ctx, models.NewEvent(models.EventUpload, "0xS", "", "QmA", now)))
	s.Require().NoError(s.store.Append(ctx, models.NewEvent(models.EventAccessRequested, "0xS", "0xB", "", now)))

	events, err := s.store.ListBySubject(ctx, "0xS", models.EventAccessRequested)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("0xB", events[0].Requester)

	empty, err := s.store.ListBySubject(ctx, "0xNobody")
	s.Require().NoError(err)
	s.Empty(empty)
}
