package bookwatch

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/bookwatch/internal/book"
	"github.com/hupe1980/bookwatch/internal/watch"
)

// buildScript appends one line to <dest>/builds per build.
const buildScript = `command = ["sh", "-c", "mkdir -p \"$BOOKWATCH_DEST_DIR\" && echo built >> \"$BOOKWATCH_DEST_DIR/builds\""]`

// writeBook creates a book directory with the given files (name → content).
func writeBook(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	return root
}

func countBuilds(t *testing.T, dest string) int {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dest, "builds"))
	if err != nil {
		return 0
	}

	return strings.Count(string(data), "built")
}

func newHandler(out io.Writer) *rebuildHandler {
	return &rebuildHandler{
		ctx:    context.Background(),
		out:    out,
		logger: discardLogger(),
	}
}

// ---------------------------------------------------------------------------
// rebuildHandler
// ---------------------------------------------------------------------------

func TestRebuildHandler_Builds(t *testing.T) {
	root := writeBook(t, map[string]string{
		"book.toml": "[build]\n" + buildScript + "\n",
		"src/a.md":  "a",
	})

	b, err := book.Load(root)
	require.NoError(t, err)

	var out bytes.Buffer
	newHandler(&out).OnChange(filepath.Join(root, "src", "a.md"), b)

	assert.Contains(t, out.String(), "File changed: "+filepath.Join(root, "src", "a.md"))
	assert.Contains(t, out.String(), "Building book...")
	assert.NotContains(t, out.String(), "Error while building")
	assert.Equal(t, 1, b.Builds)
	assert.Equal(t, 1, countBuilds(t, b.Destination()))
}

func TestRebuildHandler_BuildFailureIsReported(t *testing.T) {
	root := writeBook(t, map[string]string{
		"book.toml": "[build]\ncommand = [\"sh\", \"-c\", \"exit 4\"]\n",
		"src/a.md":  "a",
	})

	b, err := book.Load(root)
	require.NoError(t, err)

	var out bytes.Buffer
	h := newHandler(&out)
	h.OnChange(filepath.Join(root, "src", "a.md"), b)
	h.OnChange(filepath.Join(root, "src", "a.md"), b)

	assert.Equal(t, 2, strings.Count(out.String(), "Error while building: running sh"))
	assert.Equal(t, 2, b.Builds)
}

func TestRebuildHandler_ConfigChangeReloads(t *testing.T) {
	root := writeBook(t, map[string]string{
		"book.toml": "[book]\ntitle = \"Old\"\n[build]\n" + buildScript + "\n",
		"src/a.md":  "a",
	})

	b, err := book.Load(root)
	require.NoError(t, err)

	config := filepath.Join(root, "book.toml")
	require.NoError(t, os.WriteFile(config,
		[]byte("[book]\ntitle = \"New\"\n[build]\n"+buildScript+"\n"), 0o644))

	var out bytes.Buffer
	newHandler(&out).OnChange(config, b)

	assert.Contains(t, out.String(), "Book config changed:")
	assert.Contains(t, out.String(), "-title: Old")
	assert.Contains(t, out.String(), "+title: New")
	assert.Equal(t, "New", b.Settings.Title)
	assert.Equal(t, 1, b.Builds)
}

func TestRebuildHandler_BrokenConfigKeepsSettings(t *testing.T) {
	root := writeBook(t, map[string]string{
		"book.toml": "[book]\ntitle = \"Old\"\n[build]\n" + buildScript + "\n",
		"src/a.md":  "a",
	})

	b, err := book.Load(root)
	require.NoError(t, err)

	config := filepath.Join(root, "book.toml")
	require.NoError(t, os.WriteFile(config, []byte("[book\n"), 0o644))

	var out bytes.Buffer
	newHandler(&out).OnChange(config, b)

	assert.NotContains(t, out.String(), "Book config changed:")
	assert.Equal(t, "Old", b.Settings.Title)
	assert.Equal(t, 1, countBuilds(t, b.Destination()))
}

// ---------------------------------------------------------------------------
// registerTargets
// ---------------------------------------------------------------------------

type fakeAdder struct {
	missing map[string]bool
	added   []string
}

func (f *fakeAdder) Add(path string, _ bool) error {
	if f.missing[path] {
		return os.ErrNotExist
	}

	f.added = append(f.added, path)

	return nil
}

func TestRegisterTargets_SkipsOptional(t *testing.T) {
	root := writeBook(t, map[string]string{"src/a.md": "a"})

	b, err := book.Load(root)
	require.NoError(t, err)

	adder := &fakeAdder{missing: map[string]bool{
		filepath.Join(root, "theme"):     true,
		filepath.Join(root, "book.json"): true,
	}}

	reg, err := registerTargets(adder, b, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(root, "src"), filepath.Join(root, "book.toml")}, adder.added)
	assert.Len(t, reg.Active(), 2)
	assert.Len(t, reg.Skipped(), 2)
}

func TestRebuildHandler_Hook(t *testing.T) {
	root := writeBook(t, map[string]string{
		"book.toml": "[build]\ncommand = [\"sh\", \"-c\", \"exit 1\"]\n",
		"src/a.md":  "a",
	})

	b, err := book.Load(root)
	require.NoError(t, err)

	var results []BuildResult

	h := newHandler(io.Discard)
	h.hook = func(r BuildResult) { results = append(results, r) }

	h.OnChange(filepath.Join(root, "src", "a.md"), b)

	require.Len(t, results, 1)
	assert.Equal(t, filepath.Join(root, "src", "a.md"), results[0].Path)
	assert.Equal(t, 1, results[0].Builds)
	assert.False(t, results[0].Started.IsZero())
	assert.Error(t, results[0].Err)
}

func TestRebuildHandler_ReloadRegistersMovedDirectories(t *testing.T) {
	root := writeBook(t, map[string]string{
		"book.toml":      "[build]\n" + buildScript + "\n",
		"src/a.md":       "a",
		"pages/a.md":     "a",
		"skin/style.css": "body {}",
	})

	b, err := book.Load(root)
	require.NoError(t, err)

	adder := &fakeAdder{}
	h := newHandler(io.Discard)
	h.targets = watch.NewRegistry(adder)

	config := filepath.Join(root, "book.toml")
	require.NoError(t, os.WriteFile(config, []byte(
		"[book]\nsrc = \"pages\"\n[build]\n"+buildScript+"\n[output.html]\ntheme = \"skin\"\n"), 0o644))

	h.OnChange(config, b)

	assert.Equal(t, []string{filepath.Join(root, "pages"), filepath.Join(root, "skin")}, adder.added)
	assert.Equal(t, []watch.WatchTarget{
		{Path: filepath.Join(root, "pages"), Recursive: true, Required: true},
		{Path: filepath.Join(root, "skin"), Recursive: true},
	}, h.targets.Active())
	assert.Equal(t, 1, b.Builds)
}

func TestRebuildHandler_ReloadMissingSourceKeepsWatching(t *testing.T) {
	root := writeBook(t, map[string]string{
		"book.toml": "[build]\n" + buildScript + "\n",
		"src/a.md":  "a",
	})

	b, err := book.Load(root)
	require.NoError(t, err)

	adder := &fakeAdder{missing: map[string]bool{filepath.Join(root, "nowhere"): true}}
	h := newHandler(io.Discard)
	h.targets = watch.NewRegistry(adder)

	config := filepath.Join(root, "book.toml")
	require.NoError(t, os.WriteFile(config, []byte(
		"[book]\nsrc = \"nowhere\"\n[build]\n"+buildScript+"\n"), 0o644))

	h.OnChange(config, b)

	assert.Empty(t, h.targets.Active())
	assert.Len(t, h.targets.Skipped(), 1)
	assert.Equal(t, 1, countBuilds(t, b.Destination()))
}

func TestRebuildHandler_ReloadSameDirectoriesRegistersNothing(t *testing.T) {
	root := writeBook(t, map[string]string{
		"book.toml": "[book]\ntitle = \"Old\"\n[build]\n" + buildScript + "\n",
		"src/a.md":  "a",
	})

	b, err := book.Load(root)
	require.NoError(t, err)

	adder := &fakeAdder{}
	h := newHandler(io.Discard)
	h.targets = watch.NewRegistry(adder)

	config := filepath.Join(root, "book.toml")
	require.NoError(t, os.WriteFile(config, []byte(
		"[book]\ntitle = \"New\"\n[build]\n"+buildScript+"\n"), 0o644))

	h.OnChange(config, b)

	assert.Empty(t, adder.added)
}
