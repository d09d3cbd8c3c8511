package memory

import (
	"context"
	"testing"
	"time"

	"github.com/estatehub/realtime/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationRepo_CRUD(t *testing.T) {
	ctx := context.Background()
	r := NewNotificationRepo()
	n := &domain.Notification{NotificationID: "n1", RecipientID: "u1", Data: &domain.NotificationData{PropertyID: "p1"}}
	require.NoError(t, r.Put(ctx, n))

	got, err := r.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.Data.PropertyID)

	got.Data.PropertyID = "mutated"
	again, _ := r.Get(ctx, "n1")
	assert.Equal(t, "p1", again.Data.PropertyID)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.MarkRead(ctx, "n1", at))
	again, _ = r.Get(ctx, "n1")
	assert.True(t, again.Read)
	assert.Equal(t, at, *again.ReadAt)

	list, err := r.ListByRecipient(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, _ = r.ListByRecipient(ctx, "u2")
	assert.Empty(t, list)

	require.NoError(t, r.Delete(ctx, "n1"))
	_, err = r.Get(ctx, "n1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNotificationRepo_UnknownIDs(t *testing.T) {
	ctx := context.Background()
	r := NewNotificationRepo()
	assert.ErrorIs(t, r.MarkRead(ctx, "nope", time.Now()), domain.ErrNotFound)
	assert.ErrorIs(t, r.Delete(ctx, "nope"), domain.ErrNotFound)
}
