package watch

import (
	"fmt"
)

// WatchTarget is a path registered for change notification.
type WatchTarget struct {
	Path      string `json:"path" yaml:"path"`
	Recursive bool   `json:"recursive" yaml:"recursive"`
	Required  bool   `json:"required" yaml:"required"`
}

// Adder registers a path with a notifier. *Service implements it.
type Adder interface {
	Add(path string, recursive bool) error
}

// RegistrationError reports a required target that could not be watched.
type RegistrationError struct {
	Path string
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("watching %s: %v", e.Path, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// Registry registers watch targets and remembers which ones became active.
type Registry struct {
	adder   Adder
	active  []WatchTarget
	skipped []WatchTarget
}

// NewRegistry creates a registry backed by adder.
func NewRegistry(adder Adder) *Registry {
	return &Registry{adder: adder}
}

// Register registers t according to its Required flag. Only required
// targets can produce an error.
func (r *Registry) Register(t WatchTarget) error {
	if t.Required {
		return r.RegisterRequired(t.Path, t.Recursive)
	}

	r.RegisterOptional(t.Path, t.Recursive)

	return nil
}

// RegisterAll registers targets in order and stops at the first required
// target that fails.
func (r *Registry) RegisterAll(targets []WatchTarget) error {
	for _, t := range targets {
		if err := r.Register(t); err != nil {
			return err
		}
	}

	return nil
}

// RegisterRequired registers a target that must succeed. The returned error
// is a *RegistrationError.
func (r *Registry) RegisterRequired(path string, recursive bool) error {
	t := WatchTarget{Path: path, Recursive: recursive, Required: true}

	if err := r.adder.Add(path, recursive); err != nil {
		r.skipped = append(r.skipped, t)
		return &RegistrationError{Path: path, Err: err}
	}

	r.active = append(r.active, t)

	return nil
}

// RegisterOptional registers a target that may fail silently. It reports
// whether the target is now active.
func (r *Registry) RegisterOptional(path string, recursive bool) bool {
	t := WatchTarget{Path: path, Recursive: recursive}

	if err := r.adder.Add(path, recursive); err != nil {
		r.skipped = append(r.skipped, t)
		return false
	}

	r.active = append(r.active, t)

	return true
}

// Active returns the targets that were registered successfully.
func (r *Registry) Active() []WatchTarget {
	return append([]WatchTarget(nil), r.active...)
}

// Skipped returns the targets that could not be registered.
func (r *Registry) Skipped() []WatchTarget {
	return append([]WatchTarget(nil), r.skipped...)
}

// Layout describes where a project keeps the files worth watching.
type Layout struct {
	// Source is the content directory. It must exist.
	Source string

	// Theme is an optional theme directory. Empty means none.
	Theme string

	// ConfigFiles are candidate root-level configuration files. Each one is
	// watched if present.
	ConfigFiles []string
}

// ProjectTargets returns the targets for a project layout: the source
// directory (required, recursive), the theme directory (optional,
// recursive) and every config file candidate (optional, non-recursive).
func ProjectTargets(l Layout) []WatchTarget {
	targets := make([]WatchTarget, 0, 2+len(l.ConfigFiles))
	targets = append(targets, WatchTarget{Path: l.Source, Recursive: true, Required: true})

	if l.Theme != "" {
		targets = append(targets, WatchTarget{Path: l.Theme, Recursive: true})
	}

	for _, f := range l.ConfigFiles {
		targets = append(targets, WatchTarget{Path: f})
	}

	return targets
}
