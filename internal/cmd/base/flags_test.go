package base

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagSetHelp(t *testing.T) {
	var config string
	var dryRun bool
	f := NewFlagSet(flag.NewFlagSet("test", flag.ContinueOnError))
	f.StringVar(&config, "config", "quill.hcl", "Path to the `file` to load")
	f.BoolVar(&dryRun, "dry-run", false, "Only print what would be done")

	help := f.Help()
	assert.Contains(t, help, "Options:")
	assert.Contains(t, help, "-config=<file> (default: quill.hcl)")
	assert.Contains(t, help, "Path to the file to load")
	assert.Contains(t, help, "-dry-run\n")
}
