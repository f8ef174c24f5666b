package operator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/quillpress/quill/internal/cmd/base"
	"github.com/quillpress/quill/pkg/models"
)

// runFunc is the body of a subcommand once flags are parsed and the
// environment is open.
type runFunc func(ctx context.Context, e *env, c models.Collection) (interface{}, error)

// execute parses flags, opens the environment and runs fn. The result is
// printed as JSON with -json, otherwise summarize prints it.
func execute(b *base.Command, f *base.FlagSet, cf *commonFlags, args []string, fn runFunc, summarize func(interface{})) int {
	ui := b.UI

	if err := f.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	collection, err := cf.parseCollection()
	if err != nil {
		ui.Error(err.Error())
		return 1
	}

	e, err := openEnv(cf.config, b.Log)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer e.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, err := fn(ctx, e, collection)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}

	if cf.json {
		if err := b.Output(result); err != nil {
			ui.Error(err.Error())
			return 1
		}
		return 0
	}
	summarize(result)
	return 0
}
