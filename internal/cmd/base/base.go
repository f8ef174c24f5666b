// Package base holds what every quill CLI command shares.
package base

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
)

// Command is embedded by every command.
type Command struct {
	Log hclog.Logger
	UI  cli.Ui
}

// NewCommand creates a command base.
func NewCommand(log hclog.Logger, ui cli.Ui) *Command {
	return &Command{
		Log: log,
		UI:  ui,
	}
}

// Output writes v to the UI as indented JSON.
func (c *Command) Output(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding output: %w", err)
	}
	c.UI.Output(string(b))
	return nil
}
