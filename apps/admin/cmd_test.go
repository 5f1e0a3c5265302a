package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klunity/klunity/core/user"
	inmemdb "github.com/klunity/klunity/storage/database/inmem"
	"github.com/klunity/klunity/testutil"
)

var usrRepo user.Repository

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	usrRepo = inmemdb.NewUserRepository(inmemdb.Open())
	out := new(bytes.Buffer)

	// start CLI
	return &commandLine{
		db:      &sql.DB{},
		usrRepo: usrRepo,
		out:     out,
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	var ran []string
	migrateFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "0"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			default:
				assert.NoError(t, err)
			}
		})
	}
	assert.Equal(t, []string{"up", "up-by-one", "up-to", "down", "down-to", "redo", "reset", "status", "version", "fix"}, ran)

	t.Run("without database", func(t *testing.T) {
		cli.db = nil
		assert.Equal(t, errNoDatabase, cli.run([]string{"admin", "migrate", "up"}))
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()

	taken := testutil.CreateUser(t, usrRepo, "Taken", "taken", "taken@kluniversity.in", user.RoleStudent, true)

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "missing email", args: []string{"adduser", "-username", "root"}, extra: "pwd", wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "root", "-email", "root@kluniversity.in"}, wantErr: errHelp},
		{name: "invalid role", args: []string{"adduser", "-username", "root", "-email", "root@kluniversity.in", "-role", "dean"}, extra: "pwd", wantErr: errInvalidRole},
		{name: "email taken", args: []string{"adduser", "-username", "root", "-email", taken.Email}, extra: "pwd", wantErrStr: "a user with this email already exists"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			default:
				require.Error(t, err)
				assert.Contains(t, errors.Cause(err).Error(), tt.wantErrStr)
			}
		})
	}

	t.Run("create admin", func(t *testing.T) {
		mockPassword("s3cret.Admin")
		require.NoError(t, cli.run([]string{"admin", "adduser", "-name", "Root", "-username", "Root", "-email", "ROOT@kluniversity.in"}))
		assert.Contains(t, out.String(), `user "root" saved`)

		usr, err := usrRepo.GetUser(ctx, user.GetFilter{Username: "root"})
		require.NoError(t, err)
		assert.Equal(t, "Root", usr.Name)
		assert.Equal(t, "root@kluniversity.in", usr.Email)
		assert.Equal(t, user.RoleAdmin, usr.Role)
		assert.True(t, usr.IsEmailVerified)
		assert.True(t, usr.IsVerified)
		assert.NoError(t, usr.CheckPassword("s3cret.Admin"))
	})

	t.Run("update existing", func(t *testing.T) {
		mockPassword("an0ther.Pass")
		require.NoError(t, cli.run([]string{"admin", "adduser", "-username", "root", "-email", "root@kluniversity.in", "-role", "faculty"}))

		usr, err := usrRepo.GetUser(ctx, user.GetFilter{Username: "root"})
		require.NoError(t, err)
		assert.Equal(t, "Root", usr.Name)
		assert.Equal(t, user.RoleFaculty, usr.Role)
		assert.NoError(t, usr.CheckPassword("an0ther.Pass"))

		n, err := usrRepo.CountUsers(ctx, &user.QueryFilter{})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@kluniversity.in", user.RoleStudent, true)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "-username", "AWE@kluniversity.in"}, extra: "lmao"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.NoError(t, refreshedUsr.CheckPassword(pwd))
		})
	}
}

func Test_commandLine_checkUser(t *testing.T) {
	cli, out := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "Prof", "prof", "prof@kluniversity.in", user.RoleFaculty, false)

	assert.Equal(t, errHelp, cli.run([]string{"admin", "checkuser"}))
	assert.Equal(t, user.ErrNotFound, cli.run([]string{"admin", "checkuser", "-username", "nobody"}))

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "checkuser", "-username", usr.Email}))
	got := out.String()
	assert.Contains(t, got, usr.ID)
	assert.Regexp(t, `role\s+faculty`, got)
	assert.Regexp(t, `verified\s+false`, got)
	assert.Regexp(t, `suspended\s+false`, got)
	assert.NotContains(t, got, "last login")
}
