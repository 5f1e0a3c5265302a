package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/user"
)

func (cli *commandLine) checkUser(uname string) error {
	usr, err := cli.usrRepo.GetUser(context.Background(), user.GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.output(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "id\t%s\n", usr.ID)
	fmt.Fprintf(w, "username\t%s\n", usr.Username)
	fmt.Fprintf(w, "email\t%s\n", usr.Email)
	fmt.Fprintf(w, "role\t%s\n", usr.Role)
	fmt.Fprintf(w, "email verified\t%t\n", usr.IsEmailVerified)
	fmt.Fprintf(w, "verified\t%t\n", usr.IsVerified)
	fmt.Fprintf(w, "suspended\t%t\n", usr.IsSuspended)
	if !usr.LastLogin.IsZero() {
		fmt.Fprintf(w, "last login\t%s\n", usr.LastLogin.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
