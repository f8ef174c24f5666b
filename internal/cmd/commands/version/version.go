package version

import (
	"github.com/quillpress/quill/internal/cmd/base"
	"github.com/quillpress/quill/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the version of quill"
}

func (c *Command) Help() string {
	return "Usage: quill version"
}

func (c *Command) Run(args []string) int {
	c.UI.Output(version.FullVersion())
	return 0
}
