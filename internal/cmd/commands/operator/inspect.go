package operator

import (
	"context"
	"fmt"

	"github.com/quillpress/quill/internal/cmd/base"
	"github.com/quillpress/quill/pkg/janitor"
	"github.com/quillpress/quill/pkg/models"
)

type InspectCommand struct {
	*base.Command

	flags commonFlags
}

func (c *InspectCommand) Synopsis() string {
	return "Report identity problems in a collection"
}

func (c *InspectCommand) Help() string {
	return `Usage: quill operator inspect -collection=<name>

  This command reports negative, reserved and duplicate ids, duplicate and
  numeric slugs, and any unfinished reorder run. Nothing is changed.` +
		c.Flags().Help()
}

func (c *InspectCommand) Flags() *base.FlagSet {
	f := newFlagSet("inspect")
	c.flags.register(f)
	return f
}

func (c *InspectCommand) Run(args []string) int {
	return execute(c.Command, c.Flags(), &c.flags, args,
		func(ctx context.Context, e *env, coll models.Collection) (interface{}, error) {
			return janitor.New(e.alloc, c.Log).Inspect(ctx, coll)
		},
		func(result interface{}) {
			r := result.(*janitor.Report)
			c.UI.Info(fmt.Sprintf("Collection: %s", r.Collection))
			c.UI.Info(fmt.Sprintf("Live items: %d", r.LiveItems))
			c.UI.Info(fmt.Sprintf("Next id: %d", r.NextID))
			if r.Clean() {
				c.UI.Info("No problems found")
				return
			}
			if len(r.NegativeIDs) > 0 {
				c.UI.Warn(fmt.Sprintf("Negative ids: %v (fix-negative-ids)", r.NegativeIDs))
			}
			if len(r.ParkedIDs) > 0 {
				c.UI.Warn(fmt.Sprintf("Reserved-range ids: %v (cleanup-temp-ids)", r.ParkedIDs))
			}
			if len(r.DuplicateIDs) > 0 {
				c.UI.Warn(fmt.Sprintf("Duplicate live ids: %v (reorder)", r.DuplicateIDs))
			}
			if len(r.DuplicateSlugs) > 0 {
				c.UI.Warn(fmt.Sprintf("Duplicate slugs: %v (cleanup-duplicate-slugs)", r.DuplicateSlugs))
			}
			if len(r.NumericSlugs) > 0 {
				c.UI.Warn(fmt.Sprintf("Numeric slugs: %v (cleanup-duplicate-slugs)", r.NumericSlugs))
			}
			if p := r.PendingReorder; p != nil {
				c.UI.Warn(fmt.Sprintf("Unfinished reorder %s: %s after phase %s (reorder -resume)", p.RunID, p.Status, p.Phase))
				if p.LastError != "" {
					c.UI.Warn("  " + p.LastError)
				}
			}
		},
	)
}
