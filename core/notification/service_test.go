package notification_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/notification"
	"github.com/probestem/probe/testutil"
)

type fakeBroker struct {
	mu        sync.Mutex
	published map[string][]notification.Notification
}

func (b *fakeBroker) Publish(recipientID string, n notification.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = make(map[string][]notification.Notification)
	}
	b.published[recipientID] = append(b.published[recipientID], n)
}

func TestService(t *testing.T) {
	broker := &fakeBroker{}
	env := testutil.NewEnv(t, broker)
	usrs := testutil.CreateUsers(t, env.UserRepo)
	ctx := context.Background()
	svc := env.NotifSvc

	require.NoError(t, svc.Notify(ctx))
	require.NoError(t, svc.Notify(ctx,
		notification.NewNotification{RecipientID: usrs.Student.ID, Kind: notification.KindWelcome, Message: "hi"},
		notification.NewNotification{RecipientID: usrs.Student.ID, Kind: notification.KindProjectClosed, Message: "closed", Link: "/projects/1"},
		notification.NewNotification{RecipientID: usrs.Professor.ID, Kind: notification.KindApplicationReceived, Message: "new applicant"},
		notification.NewNotification{Kind: notification.KindWelcome, Message: "nobody"},
	))

	// pushed to their recipients once saved
	require.Len(t, broker.published[usrs.Student.ID], 2)
	assert.NotEmpty(t, broker.published[usrs.Student.ID][0].ID)
	assert.Len(t, broker.published[usrs.Professor.ID], 1)
	assert.Len(t, broker.published, 2)

	cnt, err := svc.UnreadCount(ctx, usrs.Student.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cnt)

	res, err := svc.List(ctx, usrs.Student.ID, false, core.Page{Size: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 1, res.PageSize)
	ns := res.Results.([]notification.Notification)
	require.Len(t, ns, 1)

	first := broker.published[usrs.Student.ID][0]
	_, err = svc.MarkRead(ctx, usrs.Professor.ID, first.ID)
	assert.Equal(t, notification.ErrNotFound, err, "users only read their own notifications")

	n, err := svc.MarkRead(ctx, usrs.Student.ID, first.ID)
	require.NoError(t, err)
	assert.True(t, n.Read)

	res, err = svc.List(ctx, usrs.Student.ID, true, core.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)

	marked, err := svc.MarkAllRead(ctx, usrs.Student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)
	cnt, err = svc.UnreadCount(ctx, usrs.Student.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, cnt)

	// only old & read notifications get pruned
	pruned, err := svc.Prune(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, pruned)
	pruned, err = svc.Prune(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	assert.Empty(t, testutil.Notifications(t, svc, usrs.Student.ID))
	assert.Len(t, testutil.Notifications(t, svc, usrs.Professor.ID), 1)
}
