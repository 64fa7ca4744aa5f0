package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probestem/probe/core/user"
	"github.com/probestem/probe/testutil"
)

// fakeMigrate mirrors the argument checks done by goose.
func fakeMigrate(command string, args ...string) error {
	switch command {
	case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
	case "up-to", "down-to":
		if len(args) == 0 {
			return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
		}
		if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
			return fmt.Errorf("version must be a number (got '%s')", args[0])
		}
	case "create":
		if len(args) == 0 {
			return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
		}
	default:
		return fmt.Errorf("%q: no such command", command)
	}
	return nil
}

func setup(t *testing.T) (*commandLine, user.Repository) {
	env := testutil.NewEnv(t, nil)
	return &commandLine{usrRepo: env.UserRepo, migrate: fakeMigrate}, env.UserRepo
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func (tt cliTest) run(t *testing.T, cli *commandLine) error {
	readPasswordFunc = func(int) ([]byte, error) { return []byte(tt.pwd), nil }
	err := cli.run(append([]string{"admin"}, tt.args...))
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
	return err
}

func Test_commandLine_usage(t *testing.T) {
	cli, _ := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.run(t, cli) })
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "webinar_tags", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.run(t, cli) })
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, repo := setup(t)
	usr := testutil.CreateUser(t, repo, "User", "awe", "awe@test.cd", testutil.Password, nil, true)

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "awe"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, pwd: "N3w#Passw0rd!", wantErr: user.ErrNotFound},
		{name: "weak password", args: []string{"resetpassword", "-username", "awe"}, pwd: "123", wantErrStr: user.PasswordError("123")},
		{name: "reset with username", args: []string{"resetpassword", "-username", "awe"}, pwd: "N3w#Passw0rd!"},
		{name: "reset with email", args: []string{"resetpassword", "-username", "AWE@test.cd"}, pwd: "An0ther#Passw0rd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(t, cli); err != nil || tt.wantErr != nil || tt.wantErrStr != "" {
				return
			}
			refreshed, err := repo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.NoError(t, refreshed.CheckPassword(tt.pwd))
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, repo := setup(t)
	existing := testutil.CreateUser(t, repo, "Old Name", "prof", "prof@test.io", testutil.Password, []string{user.RoleProfessor}, false)

	tests := []struct {
		cliTest
		wantName  string
		wantRoles []string
	}{
		{cliTest: cliTest{name: "no args", args: []string{"adduser"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "missing email", args: []string{"adduser", "-username", "root"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "no password", args: []string{"adduser", "-username", "root", "-email", "root@test.io"}, wantErr: errHelp}},
		{cliTest: cliTest{
			name:       "weak password",
			args:       []string{"adduser", "-username", "root", "-email", "root@test.io"},
			pwd:        "root",
			wantErrStr: user.PasswordError("root", "root", "root", "root@test.io"),
		}},
		{
			cliTest:   cliTest{name: "create admin", args: []string{"adduser", "-username", "Root", "-email", "root@test.io", "-admin"}, pwd: testutil.Password},
			wantName:  "root",
			wantRoles: []string{user.RoleAdminSuper},
		},
		{
			cliTest:   cliTest{name: "update existing", args: []string{"adduser", "-username", "prof", "-email", "prof@test.io", "-name", "New Name"}, pwd: "N3w#Passw0rd!"},
			wantName:  "New Name",
			wantRoles: []string{user.RoleProfessor},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(t, cli); err != nil || tt.wantName == "" {
				return
			}
			uname := strings.ToLower(tt.args[2])
			usr, err := repo.GetUser(context.Background(), user.GetFilter{Username: uname})
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, usr.Name)
			assert.Equal(t, tt.wantRoles, usr.Roles)
			assert.True(t, usr.IsActive)
			assert.NoError(t, usr.CheckPassword(tt.pwd))
			if uname == existing.Username {
				assert.Equal(t, existing.ID, usr.ID)
			}
		})
	}
}
