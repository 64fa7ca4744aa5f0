package main

import (
	"context"
	"errors"
	"time"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/user"
)

// addUser updates or creates an active user.User. Admins get the super admin role.
func (cli *commandLine) addUser(name, uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if name = core.CleanString(name); name == "" {
		name = uname
	}
	if msg := user.PasswordError(pwd, name, uname, email); msg != "" {
		return errors.New(msg)
	}

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}})
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{CreatedAt: time.Now().UTC(), Roles: []string{}}
	}
	usr.Name = name
	usr.Username = uname
	usr.Email = email
	usr.IsActive = true
	if isAdmin {
		usr.Roles = []string{user.RoleAdminSuper}
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr)
	return err
}
