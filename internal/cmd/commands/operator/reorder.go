package operator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/quillpress/quill/internal/cmd/base"
	"github.com/quillpress/quill/pkg/models"
	"github.com/quillpress/quill/pkg/reorder"
)

type ReorderCommand struct {
	*base.Command

	flags       commonFlags
	flagResume  bool
	flagAbandon bool
}

type abandonResult struct {
	RunID uuid.UUID `json:"abandonedRunId"`
}

func (c *ReorderCommand) Synopsis() string {
	return "Renumber a collection into 1..N by creation time"
}

func (c *ReorderCommand) Help() string {
	return `Usage: quill operator reorder -collection=<name> [-resume | -abandon]

  This command renumbers every live item of a collection into a dense
  sequence ordered by creation time and rewrites the links between them.
  New ids cannot be issued in the collection while it runs.

  If a run is interrupted it is reported with its last completed phase.
  Continue it with -resume. A run that stopped before rewriting links can
  instead be given up with -abandon. Its parked leftovers are then cleared
  with "quill operator cleanup-temp-ids" before reordering again.` +
		c.Flags().Help()
}

func (c *ReorderCommand) Flags() *base.FlagSet {
	f := newFlagSet("reorder")
	c.flags.register(f)
	f.BoolVar(
		&c.flagResume, "resume", false,
		"Continue the unfinished run of the collection instead of starting one.",
	)
	f.BoolVar(
		&c.flagAbandon, "abandon", false,
		"Give up the unfinished run of the collection. Only possible before it rewrote links.",
	)
	return f
}

func (c *ReorderCommand) Run(args []string) int {
	return execute(c.Command, c.Flags(), &c.flags, args,
		func(ctx context.Context, e *env, coll models.Collection) (interface{}, error) {
			if c.flagResume && c.flagAbandon {
				return nil, errors.New("-resume and -abandon cannot be combined")
			}

			engine := reorder.NewEngine(e.alloc, c.Log)
			switch {
			case c.flagResume:
				return engine.Resume(ctx, coll)
			case c.flagAbandon:
				runID, err := engine.Abandon(ctx, coll)
				if errors.Is(err, reorder.ErrCannotAbandon) {
					return nil, fmt.Errorf("%w\nrun with -resume instead", err)
				}
				if err != nil {
					return nil, err
				}
				return &abandonResult{RunID: runID}, nil
			}

			result, err := engine.Reorder(ctx, coll)
			var failure *reorder.PartialFailure
			switch {
			case errors.Is(err, reorder.ErrReorderPending):
				return nil, fmt.Errorf("%w: run with -resume to continue it, or -abandon if it stopped before rewriting links", err)
			case errors.As(err, &failure):
				if models.PhaseRewritten.Done(failure.Phase) {
					return nil, fmt.Errorf("%w\nrun with -resume to continue", err)
				}
				return nil, fmt.Errorf("%w\nrun with -resume to continue, or with -abandon, then cleanup-temp-ids, and reorder again", err)
			}
			return result, err
		},
		func(result interface{}) {
			if r, ok := result.(*abandonResult); ok {
				if r.RunID == uuid.Nil {
					c.UI.Info("No unfinished run")
					return
				}
				c.UI.Info(fmt.Sprintf("Abandoned run %s", r.RunID))
				c.UI.Info("Run cleanup-temp-ids to clear its parked leftovers")
				return
			}

			r := result.(*reorder.Result)
			c.UI.Info("=== Summary ===")
			c.UI.Info(fmt.Sprintf("Items renumbered: %d", r.TotalItems))
			c.UI.Info(fmt.Sprintf("References updated: %d", r.UpdatedReferences))
			c.UI.Info(fmt.Sprintf("Conflicts resolved: %d", r.ConflictsResolved))
			if r.MissingItems > 0 {
				c.UI.Warn(fmt.Sprintf("Items removed during the run: %d", r.MissingItems))
			}
		},
	)
}
