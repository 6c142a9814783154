package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dutyflow/internal/notification/models"
	id "dutyflow/pkg/domain"
	"dutyflow/pkg/platform/sentinel"
)

func TestInMemoryClaim(t *testing.T) {
	ctx := context.Background()
	box := NewInMemory()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []id.NotificationID
	for i := 2; i >= 0; i-- {
		n := &models.Notification{
			ID:          id.NewNotificationID(),
			RecipientID: id.NewUserID(),
			Type:        models.TypeDutyApproved,
			Metadata:    map[string]string{"dutyId": "d"},
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, box.Enqueue(ctx, n))
		ids = append([]id.NotificationID{n.ID}, ids...)
		assert.ErrorIs(t, box.Enqueue(ctx, n), sentinel.ErrConflict)
	}

	claimed, err := box.Claim(ctx, 2, base)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, ids[0], claimed[0].ID)
	assert.Equal(t, ids[1], claimed[1].ID)
	assert.NotNil(t, claimed[0].DispatchedAt)

	claimed[0].Metadata["dutyId"] = "mutated"
	stored, err := box.FindByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "d", stored.Metadata["dutyId"])

	rest, err := box.Claim(ctx, 10, base)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[2], rest[0].ID)

	none, err := box.Claim(ctx, 10, base)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, box.MarkFailed(ctx, []id.NotificationID{ids[1], id.NewNotificationID()}, "boom", base))
	failed, err := box.FindByID(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, "boom", failed.LastError)
	assert.NotNil(t, failed.FailedAt)
}
