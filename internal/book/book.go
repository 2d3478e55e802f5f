// Package book models the documentation book being watched: its layout on
// disk, its settings from book.toml or book.json, and the external command
// that builds it.
package book

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config file names looked up in the book root, in order of preference.
const (
	ConfigTOML = "book.toml"
	ConfigJSON = "book.json"
)

// Layout defaults.
const (
	DefaultSource   = "src"
	DefaultBuildDir = "book"
	DefaultTheme    = "theme"
)

// DefaultCommand builds the book with mdBook.
var DefaultCommand = []string{"mdbook", "build", "--dest-dir", "${DEST_DIR}"}

// Settings are the values read from the book's config file.
type Settings struct {
	Title       string        `json:"title,omitempty"`
	Authors     []string      `json:"authors,omitempty"`
	Source      string        `json:"src"`
	BuildDir    string        `json:"buildDir"`
	Command     []string      `json:"command"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	Theme       string        `json:"theme"`
	CurlyQuotes bool          `json:"curlyQuotes"`
}

// DefaultSettings returns the settings of a book without config file.
func DefaultSettings() Settings {
	return Settings{
		Source:   DefaultSource,
		BuildDir: DefaultBuildDir,
		Command:  append([]string(nil), DefaultCommand...),
		Theme:    DefaultTheme,
	}
}

// Book is the mutable project state threaded through every rebuild.
type Book struct {
	// Root is the absolute book directory.
	Root string

	// Settings are the effective settings from the config file.
	Settings Settings

	// ConfigFile is the config file the settings came from, empty when the
	// book has none.
	ConfigFile string

	// Builds counts build attempts.
	Builds int

	// LastBuild is the start time of the most recent build.
	LastBuild time.Time

	// LastErr is the result of the most recent build.
	LastErr error

	destination string
	curlyQuotes bool
}

// Load reads the book rooted at dir.
func Load(dir string) (*Book, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving book directory %q: %w", dir, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("reading book directory: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("book directory %q is not a directory", root)
	}

	b := &Book{Root: root}

	b.Settings, b.ConfigFile, err = readSettings(root)
	if err != nil {
		return nil, err
	}

	return b, nil
}

// WithDestination overrides the build directory. Relative paths are taken
// relative to the book root.
func (b *Book) WithDestination(dir string) *Book {
	b.destination = dir
	return b
}

// WithCurlyQuotes forces curly quote conversion on, regardless of settings.
func (b *Book) WithCurlyQuotes(on bool) *Book {
	b.curlyQuotes = on
	return b
}

// Source returns the absolute source directory.
func (b *Book) Source() string {
	return b.resolve(b.Settings.Source)
}

// Theme returns the absolute theme directory. It may not exist.
func (b *Book) Theme() string {
	if b.Settings.Theme == "" {
		return ""
	}

	return b.resolve(b.Settings.Theme)
}

// Destination returns the absolute build output directory.
func (b *Book) Destination() string {
	if b.destination != "" {
		return b.resolve(b.destination)
	}

	return b.resolve(b.Settings.BuildDir)
}

// CurlyQuotes reports whether curly quote conversion is enabled.
func (b *Book) CurlyQuotes() bool {
	return b.curlyQuotes || b.Settings.CurlyQuotes
}

// ConfigCandidates returns every config file name the book may use.
func (b *Book) ConfigCandidates() []string {
	return []string{
		filepath.Join(b.Root, ConfigTOML),
		filepath.Join(b.Root, ConfigJSON),
	}
}

// IsConfigFile reports whether path is one of the config candidates.
func (b *Book) IsConfigFile(path string) bool {
	for _, c := range b.ConfigCandidates() {
		if path == c {
			return true
		}
	}

	return false
}

func (b *Book) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}

	return filepath.Join(b.Root, p)
}

// readSettings loads the first config file found in root. A book without
// config file uses DefaultSettings.
func readSettings(root string) (Settings, string, error) {
	for _, name := range []string{ConfigTOML, ConfigJSON} {
		path := filepath.Join(root, name)

		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}

			return Settings{}, "", fmt.Errorf("reading %s: %w", name, err)
		}

		s, err := parseSettings(path)
		if err != nil {
			return Settings{}, "", err
		}

		return s, path, nil
	}

	return DefaultSettings(), "", nil
}

// parseSettings reads a book.toml or book.json. viper picks the format from
// the file extension.
func parseSettings(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := DefaultSettings()
	v.SetDefault("book.src", defaults.Source)
	v.SetDefault("build.build-dir", defaults.BuildDir)
	v.SetDefault("output.html.theme", defaults.Theme)

	if err := v.ReadInConfig(); err != nil {
		return Settings{}, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	s := Settings{
		Title:       v.GetString("book.title"),
		Authors:     v.GetStringSlice("book.authors"),
		Source:      v.GetString("book.src"),
		BuildDir:    v.GetString("build.build-dir"),
		Command:     v.GetStringSlice("build.command"),
		Timeout:     v.GetDuration("build.timeout"),
		Theme:       v.GetString("output.html.theme"),
		CurlyQuotes: v.GetBool("output.html.curly-quotes"),
	}

	if len(s.Command) == 0 {
		s.Command = defaults.Command
	}

	if s.Source == "" {
		return Settings{}, fmt.Errorf("parsing %s: book.src must not be empty", filepath.Base(path))
	}

	return s, nil
}
