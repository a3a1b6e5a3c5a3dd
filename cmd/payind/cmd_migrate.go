package main

import (
	"github.com/urfave/cli/v2"
)

var cmdMigrate = &cli.Command{
	Name:  "migrate",
	Usage: "Create or update the ledger tables and seed the sentinel users",
	Action: func(cctx *cli.Context) error {
		cfg, log, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		db, err := openDatabase(cfg.Database)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		if err := migrate(cctx.Context, db); err != nil {
			return err
		}
		log.Info().Str("driver", cfg.Database.Driver).Msg("database migrated")
		return nil
	},
}
