package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/quillpress/quill/internal/cmd/base"
	"github.com/quillpress/quill/internal/cmd/commands/migrate"
	"github.com/quillpress/quill/internal/cmd/commands/operator"
	"github.com/quillpress/quill/internal/cmd/commands/version"
)

// Commands is the mapping of all available quill commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	b := base.NewCommand(log, ui)

	Commands = map[string]cli.CommandFactory{
		"migrate": func() (cli.Command, error) {
			return &migrate.Command{Command: b}, nil
		},
		"operator": func() (cli.Command, error) {
			return &operator.Command{Command: b}, nil
		},
		"operator next-id": func() (cli.Command, error) {
			return &operator.NextIDCommand{Command: b}, nil
		},
		"operator reorder": func() (cli.Command, error) {
			return &operator.ReorderCommand{Command: b}, nil
		},
		"operator import": func() (cli.Command, error) {
			return &operator.ImportCommand{Command: b}, nil
		},
		"operator fix-negative-ids": func() (cli.Command, error) {
			return &operator.FixNegativeIDsCommand{Command: b}, nil
		},
		"operator cleanup-temp-ids": func() (cli.Command, error) {
			return &operator.CleanupTempIDsCommand{Command: b}, nil
		},
		"operator cleanup-duplicate-slugs": func() (cli.Command, error) {
			return &operator.CleanupDuplicateSlugsCommand{Command: b}, nil
		},
		"operator inspect": func() (cli.Command, error) {
			return &operator.InspectCommand{Command: b}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
	}
}
