package operator

import (
	"context"
	"fmt"

	"github.com/quillpress/quill/internal/cmd/base"
	"github.com/quillpress/quill/pkg/models"
)

type NextIDCommand struct {
	*base.Command

	flags commonFlags
}

func (c *NextIDCommand) Synopsis() string {
	return "Print the public id the next item of a collection would receive"
}

func (c *NextIDCommand) Help() string {
	return `Usage: quill operator next-id -collection=<name>

  This command prints the id the allocator would issue next. Nothing is
  written.` + c.Flags().Help()
}

func (c *NextIDCommand) Flags() *base.FlagSet {
	f := newFlagSet("next-id")
	c.flags.register(f)
	return f
}

func (c *NextIDCommand) Run(args []string) int {
	return execute(c.Command, c.Flags(), &c.flags, args,
		func(ctx context.Context, e *env, coll models.Collection) (interface{}, error) {
			nid, err := e.alloc.NextID(ctx, coll)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"collection": coll, "nextId": nid}, nil
		},
		func(result interface{}) {
			r := result.(map[string]interface{})
			c.UI.Output(fmt.Sprintf("%v", r["nextId"]))
		},
	)
}
