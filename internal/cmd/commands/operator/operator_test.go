package operator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillpress/quill/internal/cmd/base"
	"github.com/quillpress/quill/internal/cmd/commands/migrate"
	"github.com/quillpress/quill/pkg/janitor"
)

func setupCLI(t *testing.T) (string, func() (*base.Command, *cli.MockUi)) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "quill.hcl")
	config := fmt.Sprintf(`
database {
  driver = "sqlite"
  path   = %q
}

invalidation {
  log {
    enabled = true
  }
}
`, filepath.Join(dir, "quill.db"))
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))

	newBase := func() (*base.Command, *cli.MockUi) {
		ui := cli.NewMockUi()
		return base.NewCommand(hclog.NewNullLogger(), ui), ui
	}

	b, ui := newBase()
	code := (&migrate.Command{Command: b}).Run([]string{"-config", configPath})
	require.Equal(t, 0, code, ui.ErrorWriter.String())

	return configPath, newBase
}

func TestOperatorWorkflow(t *testing.T) {
	configPath, newBase := setupCLI(t)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/backup.json", []byte(`[
		{"id": 5, "title": "A", "createdAt": "2024-01-01T00:00:00Z"},
		{"id": 9, "title": "B", "createdAt": "2024-01-02T00:00:00Z"},
		{"id": 2, "title": "C", "body": "see /post/9", "createdAt": "2024-01-03T00:00:00Z"}
	]`), 0o644))

	b, ui := newBase()
	code := (&ImportCommand{Command: b, fs: fs}).Run([]string{
		"-config", configPath, "-collection", "posts", "-file", "/backup.json",
	})
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	assert.Contains(t, ui.OutputWriter.String(), "Created: 3")
	assert.Contains(t, ui.OutputWriter.String(), "Ids reassigned: 0")

	b, ui = newBase()
	code = (&ReorderCommand{Command: b}).Run([]string{
		"-config", configPath, "-collection", "article", "-json",
	})
	require.Equal(t, 0, code, ui.ErrorWriter.String())

	var result struct {
		TotalItems        int `json:"totalItems"`
		UpdatedReferences int `json:"updatedReferences"`
	}
	require.NoError(t, json.Unmarshal([]byte(ui.OutputWriter.String()), &result))
	assert.Equal(t, 3, result.TotalItems)
	assert.Equal(t, 1, result.UpdatedReferences)

	b, ui = newBase()
	code = (&NextIDCommand{Command: b}).Run([]string{"-config", configPath, "-collection", "article"})
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	assert.Equal(t, "4", strings.TrimSpace(ui.OutputWriter.String()))

	b, ui = newBase()
	code = (&InspectCommand{Command: b}).Run([]string{"-config", configPath, "-collection", "article", "-json"})
	require.Equal(t, 0, code, ui.ErrorWriter.String())

	var report janitor.Report
	require.NoError(t, json.Unmarshal([]byte(ui.OutputWriter.String()), &report))
	assert.True(t, report.Clean())
	assert.EqualValues(t, 3, report.LiveItems)
}

func TestOperatorJanitorCommands(t *testing.T) {
	configPath, newBase := setupCLI(t)

	b, ui := newBase()
	code := (&FixNegativeIDsCommand{Command: b}).Run([]string{"-config", configPath, "-collection", "moment"})
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	assert.Contains(t, ui.OutputWriter.String(), "Items reassigned: 0")

	b, ui = newBase()
	code = (&CleanupTempIDsCommand{Command: b}).Run([]string{"-config", configPath, "-collection", "moment"})
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	assert.Contains(t, ui.OutputWriter.String(), "Items deleted: 0")

	b, ui = newBase()
	code = (&CleanupDuplicateSlugsCommand{Command: b}).Run([]string{"-config", configPath, "-collection", "moment"})
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	assert.Contains(t, ui.OutputWriter.String(), "Duplicate slugs stripped: 0")
}

func TestOperatorImportListsReassignedIDsInOrder(t *testing.T) {
	configPath, newBase := setupCLI(t)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/backup.json", []byte(`[
		{"id": 70000, "title": "A"},
		{"id": 60000, "title": "B"},
		{"id": 80000, "title": "C"},
		{"id": 55000, "title": "D"}
	]`), 0o644))

	b, ui := newBase()
	code := (&ImportCommand{Command: b, fs: fs}).Run([]string{
		"-config", configPath, "-collection", "article", "-file", "/backup.json",
	})
	require.Equal(t, 0, code, ui.ErrorWriter.String())

	out := ui.OutputWriter.String()
	assert.Contains(t, out, "Ids reassigned: 4")
	idx := strings.Index(out, "Ids reassigned: 4")
	assert.Equal(t,
		"  55000 -> 4\n  60000 -> 2\n  70000 -> 1\n  80000 -> 3\n",
		out[idx+len("Ids reassigned: 4\n"):],
	)
}

func TestOperatorReorderAbandon(t *testing.T) {
	configPath, newBase := setupCLI(t)

	b, ui := newBase()
	code := (&ReorderCommand{Command: b}).Run([]string{"-config", configPath, "-collection", "article", "-abandon"})
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	assert.Contains(t, ui.OutputWriter.String(), "No unfinished run")

	b, ui = newBase()
	code = (&ReorderCommand{Command: b}).Run([]string{
		"-config", configPath, "-collection", "article", "-abandon", "-resume",
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, ui.ErrorWriter.String(), "cannot be combined")
}

func TestOperatorFlagErrors(t *testing.T) {
	configPath, newBase := setupCLI(t)

	b, ui := newBase()
	code := (&ReorderCommand{Command: b}).Run([]string{"-config", configPath})
	assert.Equal(t, 1, code)
	assert.Contains(t, ui.ErrorWriter.String(), "collection flag is required")

	b, ui = newBase()
	code = (&ReorderCommand{Command: b}).Run([]string{"-config", configPath, "-collection", "tags"})
	assert.Equal(t, 1, code)
	assert.Contains(t, ui.ErrorWriter.String(), "unknown collection")

	b, ui = newBase()
	code = (&ImportCommand{Command: b, fs: afero.NewMemMapFs()}).Run([]string{"-config", configPath, "-collection", "article"})
	assert.Equal(t, 1, code)
	assert.Contains(t, ui.ErrorWriter.String(), "file flag is required")
}
