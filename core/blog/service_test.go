package blog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/blog"
	"github.com/probestem/probe/core/user"
	"github.com/probestem/probe/testutil"
)

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	usrs := testutil.CreateUsers(t, env.UserRepo)
	ctx := context.Background()

	np := blog.NewPost{Title: "  Hello, World! ", Body: "First post", Tags: []string{"News"}, Published: true}
	require.NoError(t, np.Validate(env.Validate))

	p1, err := env.BlogSvc.Create(ctx, usrs.Professor, np)
	require.NoError(t, err)
	assert.Equal(t, "hello-world", p1.Slug)
	assert.True(t, p1.PublishedAt.Valid)
	assert.Equal(t, []string{"news"}, p1.Tags)

	p2, err := env.BlogSvc.Create(ctx, usrs.Student, np)
	require.NoError(t, err)
	assert.Equal(t, "hello-world-2", p2.Slug, "slugs are unique")

	draft, err := env.BlogSvc.Create(ctx, usrs.Student, blog.NewPost{Title: "Hello world", Body: "wip"})
	require.NoError(t, err)
	assert.Equal(t, "hello-world-3", draft.Slug)
	assert.False(t, draft.PublishedAt.Valid)

	inactive := testutil.CreateUser(t, env.UserRepo, "Gone", "gone", "gone@test.io", "", []string{user.RoleStudent}, false)
	_, err = env.BlogSvc.Create(ctx, inactive, np)
	assert.True(t, core.IsPermissionError(err))
}

func TestService_Visibility(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	usrs := testutil.CreateUsers(t, env.UserRepo)
	ctx := context.Background()

	pub, err := env.BlogSvc.Create(ctx, usrs.Student, blog.NewPost{Title: "Lab life", Body: "..", Tags: []string{"life"}, Published: true})
	require.NoError(t, err)
	draft, err := env.BlogSvc.Create(ctx, usrs.Student, blog.NewPost{Title: "Secret", Body: ".."})
	require.NoError(t, err)
	other, err := env.BlogSvc.Create(ctx, usrs.Business, blog.NewPost{Title: "Hiring", Body: "apply", Published: true})
	require.NoError(t, err)

	slugs := func(res core.PageResult) []string {
		var out []string
		for _, p := range res.Results.([]blog.Post) {
			out = append(out, p.Slug)
		}
		return out
	}

	tests := []struct {
		name   string
		viewer *user.User
		opts   blog.ListOptions
		want   []string
	}{
		{name: "anonymous", want: []string{pub.Slug, other.Slug}},
		{name: "anonymous asking for drafts", opts: blog.ListOptions{IncludeDrafts: true}, want: []string{pub.Slug, other.Slug}},
		{name: "author drafts", viewer: &usrs.Student, opts: blog.ListOptions{AuthorID: usrs.Student.ID, IncludeDrafts: true}, want: []string{pub.Slug, draft.Slug}},
		{name: "someone else's drafts", viewer: &usrs.Business, opts: blog.ListOptions{AuthorID: usrs.Student.ID, IncludeDrafts: true}, want: []string{pub.Slug}},
		{name: "admin drafts", viewer: &usrs.Admin, opts: blog.ListOptions{IncludeDrafts: true}, want: []string{pub.Slug, draft.Slug, other.Slug}},
		{name: "tag", opts: blog.ListOptions{Tag: "LIFE"}, want: []string{pub.Slug}},
		{name: "search", opts: blog.ListOptions{Search: "hir"}, want: []string{other.Slug}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := env.BlogSvc.Query(ctx, tc.viewer, tc.opts, core.Page{})
			require.NoError(t, err)
			assert.ElementsMatch(t, tc.want, slugs(res))
		})
	}

	_, err = env.BlogSvc.GetBySlug(ctx, draft.Slug, nil)
	assert.Equal(t, blog.ErrNotFound, err)
	_, err = env.BlogSvc.GetBySlug(ctx, draft.Slug, &usrs.Student2)
	assert.Equal(t, blog.ErrNotFound, err)
	got, err := env.BlogSvc.GetBySlug(ctx, " "+pub.Slug+" ", nil)
	require.NoError(t, err)
	assert.Equal(t, pub.ID, got.ID)
}

func TestService_Update(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	usrs := testutil.CreateUsers(t, env.UserRepo)
	ctx := context.Background()

	p, err := env.BlogSvc.Create(ctx, usrs.Student, blog.NewPost{Title: "Draft title", Body: ".."})
	require.NoError(t, err)

	title := "Final title"
	published := true
	up := blog.UpdatePost{Title: &title, Published: &published}
	require.NoError(t, up.Validate(env.Validate))

	_, err = env.BlogSvc.Update(ctx, usrs.Student2, p, up)
	assert.True(t, core.IsPermissionError(err))

	updated, err := env.BlogSvc.Update(ctx, usrs.Student, p, up)
	require.NoError(t, err)
	assert.Equal(t, "Final title", updated.Title)
	assert.Equal(t, p.Slug, updated.Slug, "the slug never changes")
	require.True(t, updated.PublishedAt.Valid)
	firstPublished := updated.PublishedAt.Time

	published = false
	updated, err = env.BlogSvc.Update(ctx, usrs.Student, updated, blog.UpdatePost{Published: &published})
	require.NoError(t, err)
	published = true
	updated, err = env.BlogSvc.Update(ctx, usrs.Admin, updated, blog.UpdatePost{Published: &published})
	require.NoError(t, err)
	assert.True(t, firstPublished.Equal(updated.PublishedAt.Time), "published_at is kept on republication")

	assert.True(t, core.IsPermissionError(env.BlogSvc.Delete(ctx, usrs.Business, updated)))
	require.NoError(t, env.BlogSvc.Delete(ctx, usrs.Admin, updated))
	_, err = env.BlogSvc.GetBySlug(ctx, updated.Slug, &usrs.Admin)
	assert.Equal(t, blog.ErrNotFound, err)
}
