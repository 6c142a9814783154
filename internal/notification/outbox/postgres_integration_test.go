//go:build integration

package outbox_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"dutyflow/internal/notification/models"
	"dutyflow/internal/notification/outbox"
	id "dutyflow/pkg/domain"
	"dutyflow/pkg/platform/sentinel"
	"dutyflow/pkg/testutil/containers"
)

type PostgresOutboxSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *outbox.PostgresStore
}

func TestPostgresOutboxSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresOutboxSuite))
}

func (s *PostgresOutboxSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = outbox.NewPostgres(s.postgres.DB)
}

func (s *PostgresOutboxSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "notification_outbox"))
}

func (s *PostgresOutboxSuite) enqueue(n int) []id.NotificationID {
	base := time.Now().UTC().Truncate(time.Microsecond)
	ids := make([]id.NotificationID, n)
	for i := range n {
		ids[i] = id.NewNotificationID()
		s.Require().NoError(s.store.Enqueue(context.Background(), &models.Notification{
			ID:          ids[i],
			RecipientID: id.NewUserID(),
			ExternalID:  "ext",
			PushToken:   "tok",
			Type:        models.TypeDutyCompleted,
			Message:     "Alice completed duty: Dishes",
			Metadata:    map[string]string{"dutyId": "d1", "evidenceUrl": "http://x"},
			CreatedAt:   base.Add(time.Duration(i) * time.Millisecond),
		}))
	}
	return ids
}

func (s *PostgresOutboxSuite) TestClaimRoundTrip() {
	ctx := context.Background()
	ids := s.enqueue(3)

	claimed, err := s.store.Claim(ctx, 2, time.Now())
	s.Require().NoError(err)
	s.Require().Len(claimed, 2)
	s.Equal(ids[0], claimed[0].ID)
	s.Equal(ids[1], claimed[1].ID)
	s.Equal(map[string]string{"dutyId": "d1", "evidenceUrl": "http://x"}, claimed[0].Metadata)
	s.NotNil(claimed[0].DispatchedAt)

	pending, err := s.store.Pending(ctx)
	s.Require().NoError(err)
	s.Equal(1, pending)

	s.Require().NoError(s.store.MarkFailed(ctx, []id.NotificationID{ids[0], ids[1]}, "broker down", time.Now()))
	failed, err := s.store.FindByID(ctx, ids[1])
	s.Require().NoError(err)
	s.Equal("broker down", failed.LastError)
	s.NotNil(failed.FailedAt)

	_, err = s.store.FindByID(ctx, id.NewNotificationID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresOutboxSuite) TestConcurrentClaimsNeverOverlap() {
	ctx := context.Background()
	s.enqueue(40)

	var (
		mu   sync.Mutex
		seen = make(map[id.NotificationID]int)
		wg   sync.WaitGroup
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := s.store.Claim(ctx, 5, time.Now())
				if err != nil || len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, n := range batch {
					seen[n.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Len(seen, 40)
	for nid, count := range seen {
		s.Equal(1, count, "notification %s claimed more than once", nid)
	}
}
