package main

import (
	"errors"
)

var errNoDatabase = errors.New("migrations need a postgres database")

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	return migrateFunc(cli.db, args[0], args[1:]...)
}
