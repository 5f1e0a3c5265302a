package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/klunity/klunity/core/user"
	"github.com/klunity/klunity/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	migrateFunc      = database.Migrate  // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sql.DB
	usrRepo user.Repository
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.output(), "Usage:")
	fmt.Fprintln(cli.output(), "  adduser -name NAME -username USERNAME -email EMAIL [-role student|faculty|admin] - create or update a user")
	fmt.Fprintln(cli.output(), "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.output(), "  checkuser -username USERNAME|EMAIL - print a user's account state")
	fmt.Fprintln(cli.output(), "  migrate COMMAND [ARGS] - run a goose command against the database (up, down, status...)")
}

func (cli *commandLine) output() io.Writer {
	if cli.out == nil {
		return os.Stdout
	}
	return cli.out
}

func (cli *commandLine) promptPassword(fs *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.output(), "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.output())
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRole := addUserCmd.String("role", user.RoleAdmin, "The user's role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	checkUserCmd := flag.NewFlagSet("checkuser", flag.ContinueOnError)
	checkUserUname := checkUserCmd.String("username", "", "The user's username or email.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, checkUserCmd} {
		fs.SetOutput(cli.output())
	}

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, *addUserRole, pwd)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)
	case "checkuser":
		if err := checkUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *checkUserUname == "" {
			checkUserCmd.Usage()
			return errHelp
		}
		return cli.checkUser(*checkUserUname)
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}
