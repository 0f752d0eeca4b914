package main

import (
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/storage/database"
)

var errNoDatabase = errors.New("no journal database configured (set database.name)")

var migrateFunc = runMigrations // mockable

func (cli *commandLine) migrate(direction string) error {
	switch direction {
	case database.MigrateUp, database.MigrateDown, database.MigrateStatus:
	default:
		cli.printUsage()
		return errHelp
	}
	if !cli.conf.Database.Enabled() {
		return errNoDatabase
	}
	return migrateFunc(cli.conf, direction)
}

func runMigrations(conf *core.Config, direction string) error {
	if direction == database.MigrateUp {
		if err := database.CreateIfNotExist(conf); err != nil {
			return err
		}
	}
	db, err := database.Open(conf)
	if err != nil {
		return err
	}
	defer db.Close()
	return database.Migrate(db.DB, direction)
}
