package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Renderer writes v to w in a single format.
type Renderer func(w io.Writer, v any) error

var renderers = map[string]Renderer{
	"json": renderJSON,
	"yaml": renderYAML,
}

// Formats returns the sorted list of structured format names.
func Formats() []string {
	names := make([]string, 0, len(renderers))
	for name := range renderers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Lookup returns the renderer for format.
func Lookup(format string) (Renderer, error) {
	r, ok := renderers[format]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (available: %s)", format, strings.Join(Formats(), ", "))
	}

	return r, nil
}

// Render writes v to w in the named format.
func Render(w io.Writer, format string, v any) error {
	r, err := Lookup(format)
	if err != nil {
		return err
	}

	return r(w, v)
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}

	return nil
}

// renderYAML keeps struct field order, unlike the key-sorting JSON round trip.
func renderYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}

	return nil
}
