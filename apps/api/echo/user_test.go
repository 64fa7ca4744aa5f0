package echoapi

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probestem/probe/core/notification"
	"github.com/probestem/probe/core/user"
	"github.com/probestem/probe/services/ratelimit"
	"github.com/probestem/probe/testutil"
)

func Test_home(t *testing.T) {
	app := setup(t, nil)

	rec := app.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Probe STEM API!", rec.Body.String())
}

func Test_userApi_signup(t *testing.T) {
	app := setup(t, nil)

	tests := []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/api/users/signup", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "admin role", method: http.MethodPost, path: "/api/users/signup",
			body: marshalObj(t, user.SignupUser{
				Name: "Evil", Email: "evil@test.io", Password: testutil.Password, PasswordConfirm: testutil.Password, Role: user.RoleAdmin,
			}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "email taken", method: http.MethodPost, path: "/api/users/signup",
			body: marshalObj(t, user.SignupUser{
				Name: "Dup", Email: app.users.Student.Email, Password: testutil.Password, PasswordConfirm: testutil.Password, Role: user.RoleStudent,
			}),
			wantCode: http.StatusBadRequest,
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("ok", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/users/signup", "", marshalObj(t, user.SignupUser{
			Name:            "Grace Hopper",
			Username:        "grace",
			Email:           "Grace@Test.io",
			Password:        testutil.Password,
			PasswordConfirm: testutil.Password,
			Role:            user.RoleProfessor,
			Profile:         user.Profile{Department: "Computer Science", Major: "dropped"},
		}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var usr user.User
		unmarshal(t, rec, &usr)
		assert.Equal(t, "grace@test.io", usr.Email)
		assert.Equal(t, []string{user.RoleProfessor}, usr.Roles)
		assert.Equal(t, "Computer Science", usr.Profile.Department)
		assert.Empty(t, usr.Profile.Major)
		assert.True(t, usr.IsActive)

		ns := testutil.Notifications(t, app.env.NotifSvc, usr.ID)
		require.Len(t, ns, 1)
		assert.Equal(t, notification.KindWelcome, ns[0].Kind)
	})
}

func Test_userApi_login(t *testing.T) {
	app := setup(t, nil)
	testutil.CreateUser(t, app.env.UserRepo, "Off", "off", "off@test.io", testutil.Password, []string{user.RoleStudent}, false)

	tests := []httpTest{
		{
			name: "wrong password", method: http.MethodPost, path: "/api/users/login",
			body:     marshalObj(t, LoginRequest{Username: "student", Password: "nope"}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/api/users/login",
			body:     marshalObj(t, LoginRequest{Username: "ghost", Password: testutil.Password}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/api/users/login",
			body:     marshalObj(t, LoginRequest{Username: "off", Password: testutil.Password}),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	runHTTPTests(t, app, tests)

	for _, uname := range []string{"student", "STUDENT@test.io"} {
		t.Run("ok "+uname, func(t *testing.T) {
			rec := app.do(http.MethodPost, "/api/users/login", "", marshalObj(t, LoginRequest{Username: uname, Password: testutil.Password}))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp LoginResponse
			unmarshal(t, rec, &resp)
			require.NotEmpty(t, resp.Token)

			me := app.do(http.MethodGet, "/api/users/me", resp.Token)
			require.Equal(t, http.StatusOK, me.Code)
			var usr user.User
			unmarshal(t, me, &usr)
			assert.Equal(t, app.users.Student.ID, usr.ID)
			assert.False(t, usr.LastLogin.IsZero())
		})
	}
}

func Test_userApi_me(t *testing.T) {
	app := setup(t, nil)
	off := testutil.CreateUser(t, app.env.UserRepo, "Off", "off", "off@test.io", testutil.Password, []string{user.RoleStudent}, false)

	tests := []httpTest{
		{name: "auth required", path: "/api/users/me", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "invalid token", path: "/api/users/me", token: "not.a.token",
			wantCode: http.StatusUnauthorized,
		},
		{
			name: "deactivated", path: "/api/users/me", token: getToken(t, app.env.Conf, off),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "ok", path: "/api/users/me", token: getToken(t, app.env.Conf, app.users.Business),
			wantCode: http.StatusOK, wantData: marshalObj(t, app.users.Business),
		},
	}
	runHTTPTests(t, app, tests)
}

func Test_userApi_query(t *testing.T) {
	app := setup(t, nil)
	u := app.users
	adminToken := getToken(t, app.env.Conf, u.Admin)

	path := func(v url.Values) string { return "/api/users?" + v.Encode() }

	tests := []httpTest{
		{name: "auth required", path: "/api/users", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "admin required", path: "/api/users", token: getToken(t, app.env.Conf, u.Student),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "all by name", path: path(url.Values{"ordering": {"name"}}), token: adminToken, wantCode: http.StatusOK,
			wantData: marshalObj(t, []user.User{u.Business, u.Student2, u.Admin, u.Professor, u.Student}),
		},
		{
			name: "search", path: path(url.Values{"search": {"ACME"}}), token: adminToken, wantCode: http.StatusOK,
			wantData: marshalObj(t, []user.User{u.Business}),
		},
		{
			name: "roles", path: path(url.Values{"role": {user.RoleStudent, user.RoleProfessor}, "ordering": {"name"}}), token: adminToken,
			wantCode: http.StatusOK, wantData: marshalObj(t, []user.User{u.Student2, u.Professor, u.Student}),
		},
		{
			name: "ordering", path: path(url.Values{"role": {user.RoleStudent}, "ordering": {"-name"}}), token: adminToken,
			wantCode: http.StatusOK, wantData: marshalObj(t, []user.User{u.Student, u.Student2}),
		},
		{
			name: "created_to in the past", path: path(url.Values{"created_to": {time.Now().Add(-time.Hour).Format(time.RFC3339)}}),
			token: adminToken, wantCode: http.StatusOK, wantData: []byte(`[]`),
		},
		{
			name: "invalid created_from", path: path(url.Values{"created_from": {"yesterday"}}), token: adminToken,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"created_from":"must be an RFC 3339 date-time"}`),
		},
	}
	runHTTPTests(t, app, tests)
}

func Test_userApi_retrieveUpdateDestroy(t *testing.T) {
	app := setup(t, nil)
	u := app.users
	conf := app.env.Conf
	super := testutil.CreateUser(t, app.env.UserRepo, "Super", "super", "super@test.io", testutil.Password, []string{user.RoleAdminSuper}, true)

	tests := []httpTest{
		{name: "self", path: "/api/users/" + u.Student.ID, token: getToken(t, conf, u.Student), wantCode: http.StatusOK, wantData: marshalObj(t, u.Student)},
		{
			name: "someone else", path: "/api/users/" + u.Student2.ID, token: getToken(t, conf, u.Student),
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "not found"}),
		},
		{name: "admin", path: "/api/users/" + u.Student2.ID, token: getToken(t, conf, u.Admin), wantCode: http.StatusOK, wantData: marshalObj(t, u.Student2)},
		{name: "unknown", path: "/api/users/nope", token: getToken(t, conf, u.Admin), wantCode: http.StatusNotFound},
		{
			name: "non-admin changes roles", method: http.MethodPut, path: "/api/users/" + u.Student.ID,
			token: getToken(t, conf, u.Student), body: []byte(`{"roles":["admin:"]}`), wantCode: http.StatusForbidden,
		},
		{
			name: "admin sets a higher role", method: http.MethodPut, path: "/api/users/" + u.Student.ID,
			token: getToken(t, conf, u.Admin), body: []byte(`{"roles":["admin:super"]}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"roles":"not enough rights to set these roles"}`),
		},
		{
			name: "admin deletes a super admin", method: http.MethodDelete, path: "/api/users/" + super.ID,
			token: getToken(t, conf, u.Admin), wantCode: http.StatusForbidden,
		},
		{
			name: "admin deletes themselves", method: http.MethodDelete, path: "/api/users/" + u.Admin.ID,
			token: getToken(t, conf, u.Admin), wantCode: http.StatusForbidden,
		},
		{
			name: "non-admin deletes themselves", method: http.MethodDelete, path: "/api/users/" + u.Student.ID,
			token: getToken(t, conf, u.Student), wantCode: http.StatusForbidden,
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("self update", func(t *testing.T) {
		rec := app.do(http.MethodPut, "/api/users/"+u.Student.ID, getToken(t, conf, u.Student),
			[]byte(`{"name":"Stu Renamed","profile":{"major":"Physics","graduation_year":2027,"company_name":"dropped"}}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var usr user.User
		unmarshal(t, rec, &usr)
		assert.Equal(t, "Stu Renamed", usr.Name)
		assert.Equal(t, u.Student.Username, usr.Username)
		assert.Equal(t, "Physics", usr.Profile.Major)
		assert.Equal(t, 2027, usr.Profile.GraduationYear)
		assert.Empty(t, usr.Profile.CompanyName)
	})

	t.Run("admin deactivates", func(t *testing.T) {
		rec := app.do(http.MethodPut, "/api/users/"+u.Student2.ID, getToken(t, conf, u.Admin), []byte(`{"is_active":false}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = app.do(http.MethodGet, "/api/users/me", getToken(t, conf, u.Student2))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin deletes", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/api/users/"+u.Business.ID, getToken(t, conf, u.Admin))
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		_, err := app.env.UserSvc.GetByID(context.Background(), u.Business.ID)
		assert.Equal(t, user.ErrNotFound, err)
	})
}

func Test_userApi_destroyMultiple(t *testing.T) {
	app := setup(t, nil)
	u := app.users
	adminToken := getToken(t, app.env.Conf, u.Admin)

	rec := app.do(http.MethodDelete, "/api/users?id="+u.Admin.ID+"&id="+u.Student.ID, adminToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(http.MethodDelete, "/api/users?id="+u.Student.ID+"&id="+u.Student2.ID, adminToken)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	users, err := app.env.UserSvc.Query(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func Test_userApi_create(t *testing.T) {
	app := setup(t, nil)
	adminToken := getToken(t, app.env.Conf, app.users.Admin)
	newUser := func(uname string, roles ...string) []byte {
		return marshalObj(t, user.NewUser{
			Name: "New " + uname, Username: uname, Email: uname + "@test.io",
			Password: testutil.Password, PasswordConfirm: testutil.Password, Roles: roles,
		})
	}

	tests := []httpTest{
		{
			name: "non admin", method: http.MethodPost, path: "/api/users", body: newUser("bob"),
			token: getToken(t, app.env.Conf, app.users.Professor), wantCode: http.StatusForbidden,
		},
		{
			name: "higher role", method: http.MethodPost, path: "/api/users", body: newUser("bob", user.RoleAdminSuper),
			token: adminToken, wantCode: http.StatusBadRequest, wantData: []byte(`{"roles":"not enough rights to set these roles"}`),
		},
		{name: "ok", method: http.MethodPost, path: "/api/users", body: newUser("bob", user.RoleAdmin), token: adminToken, wantCode: http.StatusCreated},
	}
	runHTTPTests(t, app, tests)
}

func Test_userApi_queryRoles(t *testing.T) {
	app := setup(t, nil)

	tests := []httpTest{
		{name: "admin required", path: "/api/users/roles", token: getToken(t, app.env.Conf, app.users.Student), wantCode: http.StatusForbidden},
		{name: "ok", path: "/api/users/roles", token: getToken(t, app.env.Conf, app.users.Admin), wantCode: http.StatusOK, wantData: marshalObj(t, user.Roles)},
	}
	runHTTPTests(t, app, tests)
}

func Test_userApi_refreshToken(t *testing.T) {
	app := setup(t, nil)
	conf := app.env.Conf
	usr := app.users.Professor

	expired := GetUserClaims(conf, usr, time.Now().Add(-conf.Server.JWTRefreshExpirationDelta-time.Minute).Unix())
	expiredToken, err := GenerateToken(conf, expired)
	require.NoError(t, err)

	rec := app.do(http.MethodPost, "/api/users/token-refresh", expiredToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"refresh has expired"}`, rec.Body.String())

	rec = app.do(http.MethodPost, "/api/users/token-refresh", getToken(t, conf, usr))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LoginResponse
	unmarshal(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
}

func Test_userApi_passwordReset(t *testing.T) {
	app := setup(t, nil, func(opts *Options) { opts.ResetLimiter = ratelimit.PerMinute(2) })
	body := func(email string) []byte { return marshalObj(t, PasswordResetRequest{Email: email}) }

	// unknown emails get the same answer
	rec := app.do(http.MethodPost, "/api/users/password-reset", "", body("ghost@test.io"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(http.MethodPost, "/api/users/password-reset", "", body(app.users.Student.Email))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Eventually(t, func() bool { return len(app.env.Mail.SentMessages()) > 0 }, time.Second, 10*time.Millisecond)

	rec = app.do(http.MethodPost, "/api/users/password-reset", "", body(app.users.Student.Email))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	t.Run("confirm with a bad token", func(t *testing.T) {
		app := setup(t, nil)
		rec := app.do(http.MethodPost, "/api/users/password-reset-confirm", "", marshalObj(t, user.ResetUserPassword{
			Token: "bad", UID: user.EncodeUID(app.users.Student), Password: testutil.Password, PasswordConfirm: testutil.Password,
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"token":"invalid or expired token"}`, rec.Body.String())
	})
}

func Test_userApi_profile(t *testing.T) {
	app := setup(t, nil)
	testutil.CreateUser(t, app.env.UserRepo, "Off", "off", "off@test.io", testutil.Password, []string{user.RoleStudent}, false)

	tests := []httpTest{
		{name: "ok", path: "/api/profiles/prof", wantCode: http.StatusOK, wantData: marshalObj(t, app.users.Professor.Public())},
		{name: "unknown", path: "/api/profiles/ghost", wantCode: http.StatusNotFound},
		{name: "deactivated", path: "/api/profiles/off", wantCode: http.StatusNotFound},
	}
	runHTTPTests(t, app, tests)
}
