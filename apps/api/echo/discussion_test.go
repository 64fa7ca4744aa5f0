package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probestem/probe/core/discussion"
	"github.com/probestem/probe/core/notification"
	"github.com/probestem/probe/testutil"
)

func Test_discussionApi(t *testing.T) {
	app := setup(t, nil)
	u := app.users
	conf := app.env.Conf
	studentToken := getToken(t, conf, u.Student)
	profToken := getToken(t, conf, u.Professor)

	tests := []httpTest{
		{
			name: "only students start discussions", method: http.MethodPost, path: "/api/discussions", token: profToken,
			body: []byte(`{"title":"Q","body":"?"}`), wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "only students can start discussions"}),
		},
		{name: "missing body", method: http.MethodPost, path: "/api/discussions", token: studentToken, body: []byte(`{"title":"Q"}`), wantCode: http.StatusBadRequest},
		{name: "unknown", path: "/api/discussions/nope", wantCode: http.StatusNotFound},
	}
	runHTTPTests(t, app, tests)

	rec := app.do(http.MethodPost, "/api/discussions", studentToken, []byte(`{"title":"How do lasers work?","body":"Asking for a friend.","tags":["Optics"]}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var d discussion.Discussion
	unmarshal(t, rec, &d)
	assert.Equal(t, []string{"optics"}, d.Tags)
	path := "/api/discussions/" + d.ID

	var answer discussion.Answer
	t.Run("answer", func(t *testing.T) {
		rec := app.do(http.MethodPost, path+"/answers", getToken(t, conf, u.Student2), []byte(`{"body":"Magic."}`))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = app.do(http.MethodPost, path+"/answers", profToken, []byte(`{"body":"Stimulated emission."}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &answer)

		ns := testutil.Notifications(t, app.env.NotifSvc, u.Student.ID)
		require.Len(t, ns, 1)
		assert.Equal(t, notification.KindDiscussionAnswered, ns[0].Kind)
	})

	vote := func(t *testing.T, path, token string, value int) (int, discussion.Tally) {
		rec := app.do(http.MethodPost, path, token, marshalObj(t, discussion.NewVote{Value: value}))
		var tally discussion.Tally
		if rec.Code == http.StatusOK {
			unmarshal(t, rec, &tally)
		}
		return rec.Code, tally
	}

	t.Run("votes", func(t *testing.T) {
		code, _ := vote(t, path+"/vote", studentToken, 1)
		assert.Equal(t, http.StatusForbidden, code, "own discussion")

		code, tally := vote(t, path+"/vote", profToken, 1)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, discussion.NewTally(1, 0, 1), tally)

		code, tally = vote(t, path+"/vote", getToken(t, conf, u.Business), -1)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, discussion.NewTally(1, 1, -1), tally)

		// same vote again toggles it off
		code, tally = vote(t, path+"/vote", profToken, 1)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, discussion.NewTally(0, 1, 0), tally)

		code, tally = vote(t, path+"/answers/"+answer.ID+"/vote", studentToken, 1)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, discussion.NewTally(1, 0, 1), tally)

		code, _ = vote(t, path+"/answers/"+answer.ID+"/vote", studentToken, 2)
		assert.Equal(t, http.StatusBadRequest, code)

		code, _ = vote(t, path+"/answers/nope/vote", studentToken, 1)
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("thread", func(t *testing.T) {
		rec := app.do(http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var th discussion.Thread
		unmarshal(t, rec, &th)
		assert.Equal(t, 1, th.AnswerCount)
		assert.Equal(t, -1, th.Score)
		assert.Zero(t, th.UserVote)
		require.Len(t, th.Answers, 1)
		assert.Zero(t, th.Answers[0].UserVote)

		rec = app.do(http.MethodGet, path, studentToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshal(t, rec, &th)
		require.Len(t, th.Answers, 1)
		assert.Equal(t, 1, th.Answers[0].UserVote)
		assert.Equal(t, 1, th.Answers[0].Score)
	})

	t.Run("query", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/discussions?tag=optics&ordering=-score", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res struct {
			Count   int                     `json:"count"`
			Results []discussion.Discussion `json:"results"`
		}
		unmarshal(t, rec, &res)
		assert.Equal(t, 1, res.Count)

		rec = app.do(http.MethodGet, "/api/discussions?search=nothing-like-this", "")
		unmarshal(t, rec, &res)
		assert.Zero(t, res.Count)
	})

	t.Run("delete", func(t *testing.T) {
		rec := app.do(http.MethodDelete, path+"/answers/"+answer.ID, studentToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		rec = app.do(http.MethodDelete, path+"/answers/"+answer.ID, profToken)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = app.do(http.MethodDelete, path, profToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		rec = app.do(http.MethodDelete, path, studentToken)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = app.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
