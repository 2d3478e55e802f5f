package book

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	sigsyaml "sigs.k8s.io/yaml"
)

// Reload re-reads the config file and replaces the settings. It returns a
// unified diff of the old and new settings, empty when nothing changed. On
// error the previous settings stay in place.
func (b *Book) Reload() (string, error) {
	next, file, err := readSettings(b.Root)
	if err != nil {
		return "", err
	}

	diff, err := DiffSettings(b.Settings, next)
	if err != nil {
		return "", err
	}

	b.Settings = next
	b.ConfigFile = file

	return diff, nil
}

// DiffSettings renders both settings as YAML with sorted keys and returns
// their unified diff.
func DiffSettings(prev, next Settings) (string, error) {
	a, err := sigsyaml.Marshal(prev)
	if err != nil {
		return "", fmt.Errorf("serializing settings: %w", err)
	}

	b, err := sigsyaml.Marshal(next)
	if err != nil {
		return "", fmt.Errorf("serializing settings: %w", err)
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: "previous",
		ToFile:   "current",
		Context:  1,
	})
	if err != nil {
		return "", fmt.Errorf("computing diff: %w", err)
	}

	return strings.TrimRight(diff, "\n"), nil
}
