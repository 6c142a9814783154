package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	notifmetrics "dutyflow/internal/notification/metrics"
	"dutyflow/internal/notification/models"
	"dutyflow/internal/notification/outbox"
	"dutyflow/internal/notification/service/mocks"
	usermodels "dutyflow/internal/user/models"
	id "dutyflow/pkg/domain"
	"dutyflow/pkg/requestcontext"
)

func newUser(t *testing.T, name string, role usermodels.Role, token string) *usermodels.User {
	t.Helper()
	u, err := usermodels.NewUser(id.NewUserID(), "ext-"+name, name, "", role, time.Now())
	require.NoError(t, err)
	u.PushToken = token
	return u
}

func TestNotifyUser(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	t.Run("queues one notification with recipient details", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		users := mocks.NewMockRecipients(ctrl)
		box := outbox.NewInMemory()
		d := New(users, box)

		alice := newUser(t, "alice", usermodels.RoleMember, "push-alice")
		users.EXPECT().FindByID(gomock.Any(), alice.ID).Return(alice, nil)

		d.NotifyUser(ctx, alice.ID, models.TypeDutyAssigned, "You have been assigned a new duty: Dishes", map[string]string{"dutyId": "d1"})

		claimed, err := box.Claim(ctx, 10, now)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		n := claimed[0]
		assert.Equal(t, alice.ID, n.RecipientID)
		assert.Equal(t, "ext-alice", n.ExternalID)
		assert.Equal(t, "push-alice", n.PushToken)
		assert.Equal(t, models.TypeDutyAssigned, n.Type)
		assert.Equal(t, map[string]string{"dutyId": "d1"}, n.Metadata)
		assert.Equal(t, now, n.CreatedAt)
	})

	t.Run("recipient without push token is skipped", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		users := mocks.NewMockRecipients(ctrl)
		box := mocks.NewMockOutbox(ctrl)
		m := notifmetrics.New(prometheus.NewRegistry())
		d := New(users, box, WithMetrics(m))

		bob := newUser(t, "bob", usermodels.RoleMember, "")
		users.EXPECT().FindByID(gomock.Any(), bob.ID).Return(bob, nil)

		d.NotifyUser(ctx, bob.ID, models.TypeDutyApproved, "ok", nil)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Skipped.WithLabelValues(string(models.TypeDutyApproved))))
	})

	t.Run("failures are swallowed and counted", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		users := mocks.NewMockRecipients(ctrl)
		box := mocks.NewMockOutbox(ctrl)
		m := notifmetrics.New(prometheus.NewRegistry())
		d := New(users, box, WithMetrics(m))

		alice := newUser(t, "alice", usermodels.RoleMember, "push-alice")
		users.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))
		users.EXPECT().FindByID(gomock.Any(), alice.ID).Return(alice, nil)
		box.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(errors.New("outbox down"))

		d.NotifyUser(ctx, id.NewUserID(), models.TypeDutyRejected, "no", nil)
		d.NotifyUser(ctx, alice.ID, models.TypeDutyRejected, "no", nil)
		assert.Equal(t, 2.0, testutil.ToFloat64(m.EnqueueFailed.WithLabelValues(string(models.TypeDutyRejected))))
	})

	t.Run("cancelled request context still enqueues", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		users := mocks.NewMockRecipients(ctrl)
		box := outbox.NewInMemory()
		d := New(users, box)

		alice := newUser(t, "alice", usermodels.RoleMember, "push-alice")
		users.EXPECT().FindByID(gomock.Any(), alice.ID).Return(alice, nil)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		d.NotifyUser(cctx, alice.ID, models.TypeDutyApproved, "ok", nil)

		pending, err := box.Pending(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, pending)
	})
}

func TestNotifyAdmins(t *testing.T) {
	ctx := context.Background()

	t.Run("fans out one notification per admin with a token", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		users := mocks.NewMockRecipients(ctrl)
		box := mocks.NewMockOutbox(ctrl)
		d := New(users, box, WithFanoutLimit(2))

		admins := []*usermodels.User{
			newUser(t, "p1", usermodels.RoleAdmin, "t1"),
			newUser(t, "p2", usermodels.RoleAdmin, "t2"),
			newUser(t, "p3", usermodels.RoleAdmin, ""),
		}
		users.EXPECT().ListAdmins(gomock.Any()).Return(admins, nil)

		var (
			mu         sync.Mutex
			recipients []id.UserID
		)
		box.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, n *models.Notification) error {
			mu.Lock()
			defer mu.Unlock()
			recipients = append(recipients, n.RecipientID)
			return nil
		}).Times(2)

		d.NotifyAdmins(ctx, models.TypeDutyCompleted, "Alice completed duty: Dishes", map[string]string{"dutyId": "d1"})
		assert.ElementsMatch(t, []id.UserID{admins[0].ID, admins[1].ID}, recipients)
	})

	t.Run("admin lookup failure is swallowed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		users := mocks.NewMockRecipients(ctrl)
		box := mocks.NewMockOutbox(ctrl)
		d := New(users, box)

		users.EXPECT().ListAdmins(gomock.Any()).Return(nil, errors.New("db down"))
		d.NotifyAdmins(ctx, models.TypeDutyCompleted, "x", nil)
	})
}
