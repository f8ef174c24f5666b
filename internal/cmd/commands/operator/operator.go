package operator

import (
	"github.com/mitchellh/cli"

	"github.com/quillpress/quill/internal/cmd/base"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Perform identity maintenance tasks"
}

func (c *Command) Help() string {
	return `Usage: quill operator <subcommand> [options] [args]

  This command groups subcommands for operators maintaining the public ids
  of quill content: allocation, reordering, backup import and repair.`
}

func (c *Command) Run(args []string) int {
	return cli.RunResultHelp
}
