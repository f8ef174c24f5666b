package operator

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/afero"

	"github.com/quillpress/quill/internal/cmd/base"
	"github.com/quillpress/quill/pkg/importer"
	"github.com/quillpress/quill/pkg/models"
)

type ImportCommand struct {
	*base.Command

	flags    commonFlags
	flagFile string

	// fs is where backups are read from. Nil means the OS filesystem.
	fs afero.Fs
}

func (c *ImportCommand) Synopsis() string {
	return "Merge a JSON or YAML backup into a collection"
}

func (c *ImportCommand) Help() string {
	return `Usage: quill operator import -collection=<name> -file=<path>

  This command merges the records of a backup into a collection. Records
  are matched to existing items by title. Records whose id is missing or
  taken by another item get a fresh id. A failing record does not stop the
  import; failures are listed at the end.` + c.Flags().Help()
}

func (c *ImportCommand) Flags() *base.FlagSet {
	f := newFlagSet("import")
	c.flags.register(f)
	f.StringVar(
		&c.flagFile, "file", "",
		"(Required) Path to the .json, .yaml or .yml backup.",
	)
	return f
}

func (c *ImportCommand) Run(args []string) int {
	var failed bool
	code := execute(c.Command, c.Flags(), &c.flags, args,
		func(ctx context.Context, e *env, coll models.Collection) (interface{}, error) {
			if c.flagFile == "" {
				return nil, fmt.Errorf("file flag is required")
			}
			fs := c.fs
			if fs == nil {
				fs = afero.NewOsFs()
			}
			records, err := importer.LoadFile(fs, c.flagFile)
			if err != nil {
				return nil, err
			}

			result, err := importer.NewMerger(e.alloc, c.Log).Merge(ctx, coll, records)
			if err != nil {
				return nil, err
			}
			failed = len(result.Errors) > 0
			return result, nil
		},
		func(result interface{}) {
			r := result.(*importer.Result)
			c.UI.Info("=== Summary ===")
			c.UI.Info(fmt.Sprintf("Created: %d", r.Created))
			c.UI.Info(fmt.Sprintf("Updated: %d", r.Updated))
			c.UI.Info(fmt.Sprintf("Ids reassigned: %d", r.IDReassigned))
			claimed := make([]int, 0, len(r.IDMapping))
			for id := range r.IDMapping {
				claimed = append(claimed, id)
			}
			sort.Ints(claimed)
			for _, id := range claimed {
				c.UI.Info(fmt.Sprintf("  %d -> %d", id, r.IDMapping[id]))
			}
			if err := r.Err(); err != nil {
				c.UI.Error(err.Error())
			}
		},
	)
	if code == 0 && failed {
		return 2
	}
	return code
}
