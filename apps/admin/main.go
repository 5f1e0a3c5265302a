package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/storage/database"
	pgrepos "github.com/klunity/klunity/storage/database/postgres"
)

func main() {
	conf := core.NewConfig()

	zl, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := zl.Named("admin").Sugar()
	defer func() { _ = logger.Sync() }()

	if conf.Database.InMemory() {
		logger.Fatal("the admin CLI needs a postgres database")
	}

	// set up DB
	db, err := database.Open(conf)
	errAndDie(logger, err)
	defer db.Close()
	errAndDie(logger, db.Ping())

	// start CLI
	cli := commandLine{
		db:      db.DB,
		usrRepo: pgrepos.NewUserRepository(db),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Errorw("command failed", "error", err)
		}
		_ = logger.Sync()
		os.Exit(1)
	}
}

func errAndDie(logger *zap.SugaredLogger, err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
