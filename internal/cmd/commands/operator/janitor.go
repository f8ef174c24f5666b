package operator

import (
	"context"
	"fmt"

	"github.com/quillpress/quill/internal/cmd/base"
	"github.com/quillpress/quill/pkg/janitor"
	"github.com/quillpress/quill/pkg/models"
)

type FixNegativeIDsCommand struct {
	*base.Command

	flags commonFlags
}

func (c *FixNegativeIDsCommand) Synopsis() string {
	return "Move items with negative ids to fresh ids"
}

func (c *FixNegativeIDsCommand) Help() string {
	return `Usage: quill operator fix-negative-ids -collection=<name>

  This command gives every item with a negative id the next free id,
  keeping their relative order.` + c.Flags().Help()
}

func (c *FixNegativeIDsCommand) Flags() *base.FlagSet {
	f := newFlagSet("fix-negative-ids")
	c.flags.register(f)
	return f
}

func (c *FixNegativeIDsCommand) Run(args []string) int {
	return execute(c.Command, c.Flags(), &c.flags, args,
		func(ctx context.Context, e *env, coll models.Collection) (interface{}, error) {
			n, err := janitor.New(e.alloc, c.Log).FixNegativeIDs(ctx, coll)
			return map[string]int{"fixed": n}, err
		},
		func(result interface{}) {
			c.UI.Info(fmt.Sprintf("Items reassigned: %d", result.(map[string]int)["fixed"]))
		},
	)
}

type CleanupTempIDsCommand struct {
	*base.Command

	flags commonFlags
}

func (c *CleanupTempIDsCommand) Synopsis() string {
	return "Delete items left in the reserved id range"
}

func (c *CleanupTempIDsCommand) Help() string {
	return `Usage: quill operator cleanup-temp-ids -collection=<name>

  This command permanently deletes every item whose id lies in the range
  reserved for reorder runs. Legitimate content never lives there. Items
  still held by an unfinished reorder run are skipped; resume that run with
  "quill operator reorder -resume", or give it up with -abandon when it
  stopped before rewriting links.` + c.Flags().Help()
}

func (c *CleanupTempIDsCommand) Flags() *base.FlagSet {
	f := newFlagSet("cleanup-temp-ids")
	c.flags.register(f)
	return f
}

func (c *CleanupTempIDsCommand) Run(args []string) int {
	return execute(c.Command, c.Flags(), &c.flags, args,
		func(ctx context.Context, e *env, coll models.Collection) (interface{}, error) {
			return janitor.New(e.alloc, c.Log).CleanupTempIDs(ctx, coll)
		},
		func(result interface{}) {
			r := result.(*janitor.CleanupResult)
			c.UI.Info(fmt.Sprintf("Items deleted: %d", r.Deleted))
			if r.Skipped > 0 {
				c.UI.Warn(fmt.Sprintf("Items skipped (held by an unfinished reorder): %d", r.Skipped))
			}
		},
	)
}

type CleanupDuplicateSlugsCommand struct {
	*base.Command

	flags commonFlags
}

func (c *CleanupDuplicateSlugsCommand) Synopsis() string {
	return "Strip duplicate and numeric slugs"
}

func (c *CleanupDuplicateSlugsCommand) Help() string {
	return `Usage: quill operator cleanup-duplicate-slugs -collection=<name>

  This command keeps each slug on the earliest created item holding it and
  removes it from the others, which are then reachable by id only. Purely
  numeric slugs are removed as well.` + c.Flags().Help()
}

func (c *CleanupDuplicateSlugsCommand) Flags() *base.FlagSet {
	f := newFlagSet("cleanup-duplicate-slugs")
	c.flags.register(f)
	return f
}

func (c *CleanupDuplicateSlugsCommand) Run(args []string) int {
	return execute(c.Command, c.Flags(), &c.flags, args,
		func(ctx context.Context, e *env, coll models.Collection) (interface{}, error) {
			return janitor.New(e.alloc, c.Log).CleanupDuplicateSlugs(ctx, coll)
		},
		func(result interface{}) {
			r := result.(*janitor.SlugResult)
			c.UI.Info(fmt.Sprintf("Duplicate slugs stripped: %d", r.Duplicates))
			c.UI.Info(fmt.Sprintf("Numeric slugs stripped: %d", r.Numeric))
		},
	)
}
