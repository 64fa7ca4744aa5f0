package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probestem/probe/core/blog"
)

func Test_blogApi(t *testing.T) {
	app := setup(t, nil)
	u := app.users
	conf := app.env.Conf
	authorToken := getToken(t, conf, u.Professor)

	create := func(t *testing.T, body string) blog.Post {
		rec := app.do(http.MethodPost, "/api/blogs", authorToken, []byte(body))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var p blog.Post
		unmarshal(t, rec, &p)
		return p
	}
	list := func(t *testing.T, path, token string) []blog.Post {
		rec := app.do(http.MethodGet, path, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res struct {
			Results []blog.Post `json:"results"`
		}
		unmarshal(t, rec, &res)
		return res.Results
	}

	tests := []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/api/blogs", body: []byte(`{"title":"T","body":"B"}`), wantCode: http.StatusUnauthorized},
		{name: "missing body", method: http.MethodPost, path: "/api/blogs", token: authorToken, body: []byte(`{"title":"T"}`), wantCode: http.StatusBadRequest},
		{name: "unknown", path: "/api/blogs/nope", wantCode: http.StatusNotFound},
	}
	runHTTPTests(t, app, tests)

	p1 := create(t, `{"title":"Hello, Wörld!","body":"First post.","tags":["News"],"published":true}`)
	p2 := create(t, `{"title":"Hello, Wörld!","body":"Same title."}`)
	assert.Equal(t, "hello-world", p1.Slug)
	assert.Equal(t, "hello-world-2", p2.Slug)
	assert.True(t, p1.PublishedAt.Valid)
	assert.False(t, p2.Published)

	t.Run("drafts", func(t *testing.T) {
		assert.Len(t, list(t, "/api/blogs", ""), 1)
		assert.Len(t, list(t, "/api/blogs?drafts=true", ""), 1)
		assert.Len(t, list(t, "/api/blogs?drafts=true&author="+u.Professor.ID, authorToken), 2)
		assert.Len(t, list(t, "/api/blogs?drafts=true", getToken(t, conf, u.Admin)), 2)

		assert.Equal(t, http.StatusNotFound, app.do(http.MethodGet, "/api/blogs/"+p2.Slug, "").Code)
		assert.Equal(t, http.StatusOK, app.do(http.MethodGet, "/api/blogs/"+p2.Slug, authorToken).Code)
		assert.Len(t, list(t, "/api/blogs?tag=news", ""), 1)
	})

	t.Run("update keeps the slug", func(t *testing.T) {
		rec := app.do(http.MethodPut, "/api/blogs/"+p2.Slug, getToken(t, conf, u.Business), []byte(`{"title":"Mine now"}`))
		assert.Equal(t, http.StatusNotFound, rec.Code, "drafts are invisible to others")

		rec = app.do(http.MethodPut, "/api/blogs/"+p1.Slug, getToken(t, conf, u.Business), []byte(`{"title":"Mine now"}`))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = app.do(http.MethodPut, "/api/blogs/"+p2.Slug, authorToken, []byte(`{"title":"A new title","published":true}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var p blog.Post
		unmarshal(t, rec, &p)
		assert.Equal(t, "A new title", p.Title)
		assert.Equal(t, p2.Slug, p.Slug)
		assert.True(t, p.PublishedAt.Valid)
		assert.Len(t, list(t, "/api/blogs", ""), 2)
	})

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, app.do(http.MethodDelete, "/api/blogs/"+p1.Slug, getToken(t, conf, u.Student)).Code)
		assert.Equal(t, http.StatusNoContent, app.do(http.MethodDelete, "/api/blogs/"+p1.Slug, getToken(t, conf, u.Admin)).Code)
		assert.Equal(t, http.StatusNotFound, app.do(http.MethodGet, "/api/blogs/"+p1.Slug, "").Code)
	})
}
