package main

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/db"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply database migrations to the remote order store",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if !cfg.Postgres.Enabled() {
				return errors.New("DB_HOST is required for migrate")
			}

			if err := db.Migrate(cfg.Postgres.URL()); err != nil {
				return err
			}
			log.Info().Str("database", cfg.Postgres.Name).Msg("Migrations applied")
			return nil
		},
	}
}
