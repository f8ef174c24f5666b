package base

import (
	"bytes"
	"flag"
	"fmt"
	"strings"
)

// FlagSet wraps a standard flag set with help formatting.
type FlagSet struct {
	*flag.FlagSet
}

// NewFlagSet wraps f.
func NewFlagSet(f *flag.FlagSet) *FlagSet {
	return &FlagSet{FlagSet: f}
}

// Help returns the flags formatted for a command's help text.
func (f *FlagSet) Help() string {
	var buf bytes.Buffer
	buf.WriteString("\n\nOptions:\n")

	f.VisitAll(func(fl *flag.Flag) {
		fmt.Fprintf(&buf, "\n  -%s", fl.Name)
		if name, _ := flag.UnquoteUsage(fl); name != "" {
			fmt.Fprintf(&buf, "=<%s>", name)
		}
		if fl.DefValue != "" && fl.DefValue != "false" {
			fmt.Fprintf(&buf, " (default: %s)", fl.DefValue)
		}
		buf.WriteString("\n")
		_, usage := flag.UnquoteUsage(fl)
		for _, line := range strings.Split(usage, "\n") {
			fmt.Fprintf(&buf, "      %s\n", line)
		}
	})

	return strings.TrimRight(buf.String(), "\n")
}
