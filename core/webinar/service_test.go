package webinar_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/notification"
	"github.com/probestem/probe/core/user"
	"github.com/probestem/probe/core/webinar"
	"github.com/probestem/probe/testutil"
)

func TestNewWebinar_Validate(t *testing.T) {
	validate := testutil.Validator()
	future := time.Now().Add(48 * time.Hour)
	base := func(mode string) webinar.NewWebinar {
		return webinar.NewWebinar{Title: "Intro to CRISPR", Description: "Gene editing 101", Mode: mode, StartsAt: future, Duration: 60}
	}

	tests := []struct {
		name    string
		nw      func() webinar.NewWebinar
		wantTag string
	}{
		{name: "online", nw: func() webinar.NewWebinar { w := base("online"); w.Link = "https://meet.example.com/x"; return w }},
		{name: "offline", nw: func() webinar.NewWebinar { w := base("OFFLINE"); w.Location = "Room 42"; return w }},
		{name: "online without link", nw: func() webinar.NewWebinar { return base(webinar.ModeOnline) }, wantTag: "link_required"},
		{name: "offline without location", nw: func() webinar.NewWebinar { return base(webinar.ModeOffline) }, wantTag: "location_required"},
		{
			name: "in the past", wantTag: core.FutureTag,
			nw: func() webinar.NewWebinar {
				w := base(webinar.ModeOffline)
				w.Location, w.StartsAt = "Room 42", time.Now().Add(-time.Hour)
				return w
			},
		},
		{name: "too long", nw: func() webinar.NewWebinar { w := base("OFFLINE"); w.Location = "x"; w.Duration = 2000; return w }, wantTag: "max"},
		{name: "unknown mode", nw: func() webinar.NewWebinar { return base("HYBRID") }, wantTag: "oneof"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			nw := tc.nw()
			err := nw.Validate(validate)
			if tc.wantTag == "" {
				assert.NoError(t, err)
				return
			}
			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			var tags []string
			for _, fe := range verrs {
				tags = append(tags, fe.Tag())
			}
			assert.Contains(t, tags, tc.wantTag)
		})
	}

	rv := webinar.Review{Status: "rejected"}
	assert.Error(t, rv.Validate(validate), "rejections need a note")
	rv = webinar.Review{Status: "approved"}
	assert.NoError(t, rv.Validate(validate))
}

func submit(t *testing.T, env *testutil.Env, host user.User, title string, startsIn time.Duration) webinar.Webinar {
	t.Helper()
	nw := webinar.NewWebinar{
		Title: title, Description: "desc", Mode: webinar.ModeOnline, Link: "https://meet.example.com/" + title,
		Location: "ignored", StartsAt: time.Now().Add(startsIn), Duration: 90,
	}
	w, err := env.WebinarSvc.Submit(context.Background(), host, nw)
	require.NoError(t, err)
	return w
}

func TestService_Workflow(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	usrs := testutil.CreateUsers(t, env.UserRepo)
	ctx := context.Background()

	_, err := env.WebinarSvc.Submit(ctx, usrs.Student, webinar.NewWebinar{Title: "x"})
	assert.True(t, core.IsPermissionError(err), "students cannot host")

	w := submit(t, env, usrs.Professor, "genomics", time.Hour)
	assert.Equal(t, webinar.StatusPending, w.Status)
	assert.Empty(t, w.Location, "offline fields are dropped for online webinars")
	assert.Equal(t, 90, w.Duration)

	// pending webinars are only visible to their host & admins
	_, err = env.WebinarSvc.Get(ctx, w.ID, nil)
	assert.Equal(t, webinar.ErrNotFound, err)
	_, err = env.WebinarSvc.Get(ctx, w.ID, &usrs.Student)
	assert.Equal(t, webinar.ErrNotFound, err)
	_, err = env.WebinarSvc.Get(ctx, w.ID, &usrs.Professor)
	assert.NoError(t, err)
	_, err = env.WebinarSvc.Get(ctx, w.ID, &usrs.Admin)
	assert.NoError(t, err)

	_, err = env.WebinarSvc.Review(ctx, usrs.Professor, w, webinar.Review{Status: webinar.StatusApproved})
	assert.True(t, core.IsPermissionError(err), "hosts cannot approve themselves")

	w, err = env.WebinarSvc.Review(ctx, usrs.Admin, w, webinar.Review{Status: webinar.StatusApproved, Note: "Great topic"})
	require.NoError(t, err)
	assert.Equal(t, webinar.StatusApproved, w.Status)
	assert.Equal(t, usrs.Admin.ID, w.ReviewedBy.String)
	assert.Equal(t, "Great topic", w.ReviewNote.String)

	_, err = env.WebinarSvc.Review(ctx, usrs.Admin, w, webinar.Review{Status: webinar.StatusRejected, Note: "oops"})
	assert.Error(t, err, "already reviewed")

	ns := testutil.Notifications(t, env.NotifSvc, usrs.Professor.ID)
	require.Len(t, ns, 1)
	assert.Equal(t, notification.KindWebinarReviewed, ns[0].Kind)
	assert.Contains(t, ns[0].Message, "approved")
	assert.Contains(t, ns[0].Message, "Great topic")

	_, err = env.WebinarSvc.Get(ctx, w.ID, nil)
	assert.NoError(t, err, "approved webinars are public")

	assert.True(t, core.IsPermissionError(env.WebinarSvc.Delete(ctx, usrs.Business, w)))
	require.NoError(t, env.WebinarSvc.Delete(ctx, usrs.Professor, w))
	_, err = env.WebinarSvc.Get(ctx, w.ID, &usrs.Admin)
	assert.Equal(t, webinar.ErrNotFound, err)
}

func TestService_ConcurrentReviews(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	usrs := testutil.CreateUsers(t, env.UserRepo)
	ctx := context.Background()
	w := submit(t, env, usrs.Professor, "astrophysics", time.Hour)

	reviews := []webinar.Review{
		{Status: webinar.StatusApproved},
		{Status: webinar.StatusRejected, Note: "too short"},
		{Status: webinar.StatusApproved, Note: "fine"},
		{Status: webinar.StatusRejected, Note: "off topic"},
	}
	var (
		wg   sync.WaitGroup
		errs = make([]error, len(reviews))
	)
	for i, rv := range reviews {
		wg.Add(1)
		go func(i int, rv webinar.Review) {
			defer wg.Done()
			_, errs[i] = env.WebinarSvc.Review(ctx, usrs.Admin, w, rv)
		}(i, rv)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.EqualError(t, err, webinar.ErrAlreadyReviewed.Error())
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, testutil.Notifications(t, env.NotifSvc, usrs.Professor.ID), 1)
}

func TestService_Query(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	usrs := testutil.CreateUsers(t, env.UserRepo)
	ctx := context.Background()

	approved := submit(t, env, usrs.Professor, "approved", 2*time.Hour)
	pending := submit(t, env, usrs.Professor, "pending", 3*time.Hour)
	rejected := submit(t, env, usrs.Business, "rejected", time.Hour)
	var err error
	approved, err = env.WebinarSvc.Review(ctx, usrs.Admin, approved, webinar.Review{Status: webinar.StatusApproved})
	require.NoError(t, err)
	rejected, err = env.WebinarSvc.Review(ctx, usrs.Admin, rejected, webinar.Review{Status: webinar.StatusRejected, Note: "off topic"})
	require.NoError(t, err)

	ids := func(res core.PageResult) []string {
		var out []string
		for _, w := range res.Results.([]webinar.Webinar) {
			out = append(out, w.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		viewer *user.User
		opts   webinar.ListOptions
		want   []string
	}{
		{name: "anonymous", want: []string{approved.ID}},
		{name: "anonymous asking for pending", opts: webinar.ListOptions{Status: []string{"pending"}}, want: []string{approved.ID}},
		{name: "student", viewer: &usrs.Student, want: []string{approved.ID}},
		{name: "host, mine", viewer: &usrs.Professor, opts: webinar.ListOptions{Mine: true}, want: []string{approved.ID, pending.ID}},
		{name: "host, mine & pending", viewer: &usrs.Professor, opts: webinar.ListOptions{Mine: true, Status: []string{"pending"}}, want: []string{pending.ID}},
		{name: "admin, all (by start)", viewer: &usrs.Admin, want: []string{rejected.ID, approved.ID, pending.ID}},
		{name: "admin, pending", viewer: &usrs.Admin, opts: webinar.ListOptions{Status: []string{"PENDING"}}, want: []string{pending.ID}},
		{name: "admin, by host", viewer: &usrs.Admin, opts: webinar.ListOptions{HostID: usrs.Business.ID}, want: []string{rejected.ID}},
		{name: "search", viewer: &usrs.Admin, opts: webinar.ListOptions{Search: "PEND"}, want: []string{pending.ID}},
		{name: "upcoming", viewer: &usrs.Admin, opts: webinar.ListOptions{Upcoming: true}, want: []string{rejected.ID, approved.ID, pending.ID}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := env.WebinarSvc.Query(ctx, tc.viewer, tc.opts, core.Page{})
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(res))
		})
	}
}
