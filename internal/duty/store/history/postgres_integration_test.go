//go:build integration

package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"dutyflow/internal/duty/models"
	dutystore "dutyflow/internal/duty/store/duty"
	historystore "dutyflow/internal/duty/store/history"
	usermodels "dutyflow/internal/user/models"
	userstore "dutyflow/internal/user/store"
	id "dutyflow/pkg/domain"
	"dutyflow/pkg/platform/sentinel"
	"dutyflow/pkg/testutil/containers"
)

type PostgresHistoryStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *historystore.PostgresStore
	duty     *models.Duty
	actor    id.UserID
}

func TestPostgresHistoryStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresHistoryStoreSuite))
}

func (s *PostgresHistoryStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = historystore.NewPostgres(s.postgres.DB)
}

func (s *PostgresHistoryStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "duty_history", "duties", "users"))

	u, err := usermodels.NewUser(id.NewUserID(), "ext-parent", "Parent", "", usermodels.RoleAdmin, time.Now())
	s.Require().NoError(err)
	saved, err := userstore.NewPostgres(s.postgres.DB).Upsert(ctx, u)
	s.Require().NoError(err)
	s.actor = saved.ID

	s.duty, err = models.NewDuty(id.NewDutyID(), "Dishes", "", nil, s.actor, time.Now().UTC())
	s.Require().NoError(err)
	s.Require().NoError(dutystore.NewPostgres(s.postgres.DB).Create(ctx, s.duty))
}

func (s *PostgresHistoryStoreSuite) TestChainRoundTrip() {
	ctx := context.Background()

	_, err := s.store.Last(ctx, s.duty.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	prev := ""
	statuses := []models.Status{models.StatusPending, models.StatusPendingApproval, models.StatusApproved}
	for i, status := range statuses {
		e := models.NewHistoryEntry(s.duty.ID, status, s.actor, "", prev, time.Now().Add(time.Duration(i)*time.Millisecond))
		s.Require().NoError(s.store.Append(ctx, e))
		prev = e.Hash
	}

	entries, err := s.store.ListByDuty(ctx, s.duty.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	for i, status := range statuses {
		s.Equal(status, entries[i].Status)
	}
	s.NoError(models.VerifyChain(entries), "hashes survive the database round-trip")

	last, err := s.store.Last(ctx, s.duty.ID)
	s.Require().NoError(err)
	s.Equal(prev, last.Hash)
}

func (s *PostgresHistoryStoreSuite) TestAppendOnly() {
	ctx := context.Background()
	e := models.NewHistoryEntry(s.duty.ID, models.StatusPending, s.actor, "Duty created", "", time.Now())
	s.Require().NoError(s.store.Append(ctx, e))
	s.ErrorIs(s.store.Append(ctx, e), sentinel.ErrConflict)

	_, err := s.postgres.DB.ExecContext(ctx, `UPDATE duty_history SET comment = 'rewritten'`)
	s.ErrorContains(err, "append-only")
	_, err = s.postgres.DB.ExecContext(ctx, `DELETE FROM duty_history`)
	s.ErrorContains(err, "append-only")

	entries, err := s.store.ListByDuty(ctx, s.duty.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("Duty created", entries[0].Comment)
}
