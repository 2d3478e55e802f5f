package watch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdder records Add calls and fails for configured paths.
type fakeAdder struct {
	fail  map[string]error
	calls []WatchTarget
}

func (f *fakeAdder) Add(path string, recursive bool) error {
	f.calls = append(f.calls, WatchTarget{Path: path, Recursive: recursive})
	return f.fail[path]
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func TestRegistry_RegisterRequired(t *testing.T) {
	adder := &fakeAdder{}
	r := NewRegistry(adder)

	require.NoError(t, r.RegisterRequired("src", true))
	assert.Equal(t, []WatchTarget{{Path: "src", Recursive: true, Required: true}}, r.Active())
	assert.Empty(t, r.Skipped())
}

func TestRegistry_RegisterRequiredFailure(t *testing.T) {
	cause := errors.New("no such file or directory")
	adder := &fakeAdder{fail: map[string]error{"src": cause}}
	r := NewRegistry(adder)

	err := r.RegisterRequired("src", true)
	require.Error(t, err)

	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "src", regErr.Path)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "watching src")
	assert.Empty(t, r.Active())
}

func TestRegistry_RegisterOptionalFailureIsSilent(t *testing.T) {
	adder := &fakeAdder{fail: map[string]error{"theme": errors.New("missing")}}
	r := NewRegistry(adder)

	assert.False(t, r.RegisterOptional("theme", true))
	assert.True(t, r.RegisterOptional("book.toml", false))

	assert.Equal(t, []WatchTarget{{Path: "book.toml"}}, r.Active())
	assert.Equal(t, []WatchTarget{{Path: "theme", Recursive: true}}, r.Skipped())
}

func TestRegistry_RegisterAllStopsAtRequiredFailure(t *testing.T) {
	adder := &fakeAdder{fail: map[string]error{"src": errors.New("missing")}}
	r := NewRegistry(adder)

	err := r.RegisterAll([]WatchTarget{
		{Path: "book.toml"},
		{Path: "src", Recursive: true, Required: true},
		{Path: "theme", Recursive: true},
	})
	require.Error(t, err)

	// theme comes after the failed required target and is never tried.
	assert.Len(t, adder.calls, 2)
}

func TestRegistry_OptionalFailuresDoNotAffectOthers(t *testing.T) {
	adder := &fakeAdder{fail: map[string]error{"book.json": errors.New("missing")}}
	r := NewRegistry(adder)

	require.NoError(t, r.RegisterAll([]WatchTarget{
		{Path: "book.json"},
		{Path: "book.toml"},
		{Path: "src", Recursive: true, Required: true},
	}))

	assert.Len(t, r.Active(), 2)
	assert.Len(t, r.Skipped(), 1)
}

// ---------------------------------------------------------------------------
// ProjectTargets
// ---------------------------------------------------------------------------

func TestProjectTargets(t *testing.T) {
	targets := ProjectTargets(Layout{
		Source:      "/book/src",
		Theme:       "/book/theme",
		ConfigFiles: []string{"/book/book.toml", "/book/book.json"},
	})

	assert.Equal(t, []WatchTarget{
		{Path: "/book/src", Recursive: true, Required: true},
		{Path: "/book/theme", Recursive: true},
		{Path: "/book/book.toml"},
		{Path: "/book/book.json"},
	}, targets)
}

func TestProjectTargets_NoTheme(t *testing.T) {
	targets := ProjectTargets(Layout{Source: "/book/src"})
	assert.Equal(t, []WatchTarget{{Path: "/book/src", Recursive: true, Required: true}}, targets)
}

// ---------------------------------------------------------------------------
// Registry with a real Service
// ---------------------------------------------------------------------------

func TestRegistry_BookScenario(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "docs", "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "book.toml"), []byte("[book]\n"), 0o644))

	svc, err := NewService(ServiceOptions{})
	require.NoError(t, err)
	defer svc.Close()

	r := NewRegistry(svc)
	require.NoError(t, r.RegisterAll(ProjectTargets(Layout{
		Source: src,
		Theme:  filepath.Join(root, "docs", "theme"),
		ConfigFiles: []string{
			filepath.Join(root, "docs", "book.toml"),
			filepath.Join(root, "docs", "book.json"),
		},
	})))

	active := r.Active()
	require.Len(t, active, 2)
	assert.Equal(t, src, active[0].Path)
	assert.Equal(t, filepath.Join(root, "docs", "book.toml"), active[1].Path)
	assert.Len(t, r.Skipped(), 2)
}

func TestRegistry_MissingSourceIsFatal(t *testing.T) {
	svc, err := NewService(ServiceOptions{})
	require.NoError(t, err)
	defer svc.Close()

	r := NewRegistry(svc)
	err = r.RegisterAll(ProjectTargets(Layout{Source: filepath.Join(t.TempDir(), "missing")}))

	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
