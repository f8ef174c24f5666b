package migrate

import (
	"flag"
	"fmt"

	"github.com/quillpress/quill/internal/cmd/base"
	"github.com/quillpress/quill/internal/config"
	"github.com/quillpress/quill/pkg/database"
)

type Command struct {
	*base.Command

	flagConfig string
}

func (c *Command) Synopsis() string {
	return "Create or update the database schema"
}

func (c *Command) Help() string {
	return `Usage: quill migrate [-config=<path>]

  This command creates the content and reorder journal tables together with
  the unique indexes that keep live public ids and slugs distinct. It is
  safe to run repeatedly.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("migrate", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"Path to the quill HCL config file. Without it a local quill.db is used.",
	)

	return f
}

func (c *Command) Run(args []string) int {
	logger, ui := c.Log, c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := config.NewConfig(c.flagConfig)
	if err != nil {
		ui.Error(fmt.Sprintf("error parsing config file: %v", err))
		return 1
	}

	conn, err := cfg.Database.Connection()
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	db, err := database.Connect(conn, logger)
	if err != nil {
		ui.Error(fmt.Sprintf("error initializing database: %v", err))
		return 1
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	if err := database.Migrate(db); err != nil {
		ui.Error(err.Error())
		return 1
	}

	ui.Info(fmt.Sprintf("Migrated %s database", conn.Driver))
	return 0
}
