package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/user"
)

var errInvalidRole = errors.New("role must be one of student, faculty, admin")

// addUser updates or creates a verified user.User
func (cli *commandLine) addUser(name, uname, email, role, pwd string) error {
	var usr user.User
	var err error
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	role = core.CleanString(role, true /* lower */)

	if !validRole(role) {
		return errInvalidRole
	}

	now := time.Now().UTC()
	if usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname}); err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Username:  uname,
			CreatedAt: now,
		}
	}
	var excluded []string
	if usr.ID != "" {
		excluded = append(excluded, usr.ID)
	}
	if err = cli.usrRepo.CheckUniqueness(ctx, uname, email, excluded...); err != nil {
		return err
	}
	if name = core.CleanString(name); name != "" {
		usr.Name = name
	} else if usr.Name == "" {
		usr.Name = uname
	}
	usr.Email = email
	usr.Role = role
	usr.IsEmailVerified = true
	usr.IsVerified = true
	usr.IsSuspended = false
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if usr, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	fmt.Fprintf(cli.output(), "user %q saved (%s)\n", usr.Username, usr.ID)
	return nil
}

func validRole(role string) bool {
	for _, r := range user.AllRoles {
		if r == role {
			return true
		}
	}
	return false
}
