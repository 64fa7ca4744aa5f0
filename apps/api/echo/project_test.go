package echoapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/notification"
	"github.com/probestem/probe/core/project"
	"github.com/probestem/probe/core/user"
	"github.com/probestem/probe/testutil"
)

func createProject(t *testing.T, app testApp, owner user.User, np project.NewProject) project.Project {
	t.Helper()
	rec := app.do(http.MethodPost, "/api/projects", getToken(t, app.env.Conf, owner), marshalObj(t, np))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p project.Project
	unmarshal(t, rec, &p)
	return p
}

func newProject(title string, maxApplicants int) project.NewProject {
	return project.NewProject{
		Title:         title,
		Description:   "Looking for curious minds.",
		Kind:          project.KindResearch,
		Tags:          []string{"Physics"},
		Deadline:      null.TimeFrom(time.Now().Add(48 * time.Hour)),
		MaxApplicants: maxApplicants,
	}
}

func Test_projectApi_create(t *testing.T) {
	app := setup(t, nil)
	u := app.users
	conf := app.env.Conf

	tests := []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/api/projects", body: marshalObj(t, newProject("X", 0)), wantCode: http.StatusUnauthorized},
		{
			name: "students cannot post", method: http.MethodPost, path: "/api/projects", token: getToken(t, conf, u.Student),
			body: marshalObj(t, newProject("X", 0)), wantCode: http.StatusForbidden,
		},
		{
			name: "past deadline", method: http.MethodPost, path: "/api/projects", token: getToken(t, conf, u.Professor),
			body: []byte(`{"title":"X","description":"d","kind":"RESEARCH","deadline":"2001-01-01T00:00:00Z"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown kind", method: http.MethodPost, path: "/api/projects", token: getToken(t, conf, u.Professor),
			body: []byte(`{"title":"X","description":"d","kind":"PARTY"}`), wantCode: http.StatusBadRequest,
		},
	}
	runHTTPTests(t, app, tests)

	p := createProject(t, app, u.Professor, newProject("Quantum dots", 2))
	assert.Equal(t, u.Professor.ID, p.OwnerID)
	assert.Equal(t, project.StatusOpen, p.Status)
	assert.Equal(t, []string{"physics"}, p.Tags)
	assert.Zero(t, p.ApplicantCount)
}

func Test_projectApi_query(t *testing.T) {
	app := setup(t, nil)
	u := app.users
	p1 := createProject(t, app, u.Professor, newProject("Quantum dots", 0))
	np := newProject("Summer internship", 0)
	np.Kind = project.KindInternship
	np.Tags = []string{"marketing"}
	p2 := createProject(t, app, u.Business, np)

	type page struct {
		Count   int               `json:"count"`
		Results []project.Project `json:"results"`
	}
	query := func(t *testing.T, path string) page {
		rec := app.do(http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res page
		unmarshal(t, rec, &res)
		return res
	}

	ids := func(ps []project.Project) []string {
		out := make([]string, 0, len(ps))
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}

	tests := []struct {
		name string
		path string
		want []string
	}{
		{"all by title", "/api/projects?ordering=title", []string{p1.ID, p2.ID}},
		{"by kind", "/api/projects?kind=internship", []string{p2.ID}},
		{"by tag", "/api/projects?tag=PHYSICS", []string{p1.ID}},
		{"by owner", "/api/projects?owner=" + u.Professor.ID, []string{p1.ID}},
		{"search", "/api/projects?search=quantum", []string{p1.ID}},
		{"closed", "/api/projects?status=CLOSED", []string{}},
		{"page size", "/api/projects?ordering=-title&page_size=1", []string{p2.ID}},
		{"page past the end", "/api/projects?page=3&page_size=1", []string{}},
		{"huge page", "/api/projects?page=92233720368547760&page_size=100", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(query(t, tt.path).Results))
		})
	}
	assert.Equal(t, 2, query(t, "/api/projects?page_size=1").Count)
}

func Test_listEndpoints_hugePage(t *testing.T) {
	app := setup(t, nil)
	createProject(t, app, app.users.Professor, newProject("Quantum dots", 0))

	for _, path := range []string{"/api/projects", "/api/discussions", "/api/webinars", "/api/blogs"} {
		t.Run(path, func(t *testing.T) {
			rec := app.do(http.MethodGet, path+"?page=92233720368547760&page_size=100", "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var res core.PageResult
			unmarshal(t, rec, &res)
			assert.Equal(t, core.MaxPageNumber, res.Page)
			assert.Empty(t, res.Results)
		})
	}
}

func Test_projectApi_updateStatusDelete(t *testing.T) {
	app := setup(t, nil)
	u := app.users
	conf := app.env.Conf
	p := createProject(t, app, u.Professor, newProject("Quantum dots", 0))
	path := "/api/projects/" + p.ID

	tests := []httpTest{
		{name: "retrieve", path: path, wantCode: http.StatusOK},
		{name: "unknown", path: "/api/projects/nope", wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: project.ErrNotFound.Error()})},
		{name: "not the owner", method: http.MethodPut, path: path, token: getToken(t, conf, u.Business), body: []byte(`{"title":"Mine"}`), wantCode: http.StatusForbidden},
		{name: "owner updates", method: http.MethodPut, path: path, token: getToken(t, conf, u.Professor), body: []byte(`{"title":"Quantum wells"}`), wantCode: http.StatusOK},
		{name: "bad status", method: http.MethodPatch, path: path + "/status", token: getToken(t, conf, u.Professor), body: []byte(`{"status":"DONE"}`), wantCode: http.StatusBadRequest},
		{name: "ongoing", method: http.MethodPatch, path: path + "/status", token: getToken(t, conf, u.Professor), body: []byte(`{"status":"ongoing"}`), wantCode: http.StatusOK},
		{name: "closed", method: http.MethodPatch, path: path + "/status", token: getToken(t, conf, u.Admin), body: []byte(`{"status":"CLOSED"}`), wantCode: http.StatusOK},
		{name: "reopen a closed project", method: http.MethodPatch, path: path + "/status", token: getToken(t, conf, u.Professor), body: []byte(`{"status":"OPEN"}`), wantCode: http.StatusBadRequest},
		{name: "not the owner deletes", method: http.MethodDelete, path: path, token: getToken(t, conf, u.Student), wantCode: http.StatusForbidden},
		{name: "owner deletes", method: http.MethodDelete, path: path, token: getToken(t, conf, u.Professor), wantCode: http.StatusNoContent},
		{name: "gone", path: path, wantCode: http.StatusNotFound},
	}
	runHTTPTests(t, app, tests)
}

func Test_projectApi_applications(t *testing.T) {
	app := setup(t, nil)
	u := app.users
	conf := app.env.Conf
	p := createProject(t, app, u.Professor, newProject("Quantum dots", 1))
	path := "/api/projects/" + p.ID
	apply := []byte(`{"message":"Pick me!","resume_url":"https://cv.test.io/stu"}`)

	eligibility := func(t *testing.T, token string) project.Eligibility {
		rec := app.do(http.MethodGet, path+"/eligibility", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var el project.Eligibility
		unmarshal(t, rec, &el)
		return el
	}

	assert.Equal(t, project.Eligibility{Reason: project.ReasonUnauthenticated}, eligibility(t, ""))
	assert.Equal(t, project.Eligibility{Reason: project.ReasonNotStudent}, eligibility(t, getToken(t, conf, u.Business)))
	assert.Equal(t, project.Eligibility{CanApply: true}, eligibility(t, getToken(t, conf, u.Student)))

	var app1 project.Application
	t.Run("apply", func(t *testing.T) {
		rec := app.do(http.MethodPost, path+"/apply", getToken(t, conf, u.Student), apply)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &app1)
		assert.Equal(t, project.ApplicationPending, app1.Status)
		assert.Equal(t, u.Student.ID, app1.ApplicantID)

		ns := testutil.Notifications(t, app.env.NotifSvc, u.Professor.ID)
		require.Len(t, ns, 1)
		assert.Equal(t, notification.KindApplicationReceived, ns[0].Kind)
	})

	tests := []httpTest{
		{
			name: "apply twice", method: http.MethodPost, path: path + "/apply", token: getToken(t, conf, u.Student), body: apply,
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: project.ReasonAlreadyApplied}),
		},
		{
			name: "full", method: http.MethodPost, path: path + "/apply", token: getToken(t, conf, u.Student2), body: apply,
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: project.ReasonFull}),
		},
		{name: "applicants list is for the owner", path: path + "/applications", token: getToken(t, conf, u.Student), wantCode: http.StatusForbidden},
		{name: "mine", path: "/api/applications/mine", token: getToken(t, conf, u.Student2), wantCode: http.StatusOK, wantData: []byte(`[]`)},
	}
	runHTTPTests(t, app, tests)

	t.Run("owner lists & reviews", func(t *testing.T) {
		rec := app.do(http.MethodGet, path+"/applications", getToken(t, conf, u.Professor))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var apps []project.Application
		unmarshal(t, rec, &apps)
		require.Len(t, apps, 1)

		rec = app.do(http.MethodPatch, path+"/applications/"+app1.ID, getToken(t, conf, u.Professor), []byte(`{"status":"approved"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var reviewed project.Application
		unmarshal(t, rec, &reviewed)
		assert.Equal(t, project.ApplicationApproved, reviewed.Status)

		ns := testutil.Notifications(t, app.env.NotifSvc, u.Student.ID)
		require.NotEmpty(t, ns)
		assert.Equal(t, notification.KindApplicationReviewed, ns[0].Kind)
	})

	t.Run("reviewed applications cannot be withdrawn", func(t *testing.T) {
		rec := app.do(http.MethodDelete, path+"/apply", getToken(t, conf, u.Student))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func Test_projectApi_withdraw(t *testing.T) {
	app := setup(t, nil)
	u := app.users
	conf := app.env.Conf
	p := createProject(t, app, u.Business, newProject("Data internship", 1))
	path := "/api/projects/" + p.ID

	rec := app.do(http.MethodDelete, path+"/apply", getToken(t, conf, u.Student))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(http.MethodPost, path+"/apply", getToken(t, conf, u.Student), []byte(`{}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = app.do(http.MethodDelete, path+"/apply", getToken(t, conf, u.Student))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	// the seat is free again
	got, err := app.env.ProjectSvc.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ApplicantCount)
	rec = app.do(http.MethodPost, path+"/apply", getToken(t, conf, u.Student2), []byte(`{}`))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}
