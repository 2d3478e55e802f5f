// Package bookwatch provides a public Go API for watching a documentation
// book and rebuilding it whenever its sources change.
//
// This package exposes the bookwatch watch loop as a library, allowing
// programmatic use without the CLI.
//
// Basic usage:
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := bookwatch.Watch(ctx, "path/to/book"); err != nil {
//	    log.Fatal(err)
//	}
//
// With options:
//
//	err := bookwatch.Watch(ctx, "path/to/book",
//	    bookwatch.WithDestination("public"),
//	    bookwatch.WithDebounce(500*time.Millisecond),
//	    bookwatch.WithBuildHook(func(r bookwatch.BuildResult) {
//	        log.Printf("%s: build #%d err=%v", r.Path, r.Builds, r.Err)
//	    }),
//	)
package bookwatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/hupe1980/bookwatch/internal/book"
	"github.com/hupe1980/bookwatch/internal/config"
	"github.com/hupe1980/bookwatch/internal/watch"
)

// Errors returned by Watch when the watcher gives up.
var (
	ErrTooManyErrors = watch.ErrTooManyErrors
	ErrSourceClosed  = watch.ErrSourceClosed
)

// Target is a path registered for change notification.
type Target = watch.WatchTarget

// RegistrationError reports a required target that could not be watched.
type RegistrationError = watch.RegistrationError

// BuildResult describes one rebuild triggered by a change.
type BuildResult struct {
	// Path is the changed file that triggered the build. It is empty for
	// the initial build requested with WithBrowser.
	Path string

	// Builds is the number of builds run so far, including this one.
	Builds int

	// Started is when the build began.
	Started time.Time

	// Err is the build error, nil on success.
	Err error
}

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Option configures Watch and Targets.
// Use the With* functions to create Options.
type Option func(*options)

type options struct {
	// Book overrides.
	destination string
	curlyQuotes bool

	// Watcher tuning.
	debounce      time.Duration
	maxRetries    int
	retryDelay    time.Duration
	maxRetryDelay time.Duration

	// Reporting.
	logger  *slog.Logger
	out     io.Writer
	hook    func(BuildResult)
	browser func(ctx context.Context, target string) error
}

func defaultOptions() *options {
	return &options{
		debounce:      config.DefaultDebounce,
		maxRetries:    config.DefaultMaxRetries,
		retryDelay:    config.DefaultRetryDelay,
		maxRetryDelay: 5 * time.Second,
		logger:        discardLogger(),
		out:           io.Discard,
	}
}

// --- Book overrides ---

// WithDestination overrides the build directory. Relative paths resolve
// against the book root.
func WithDestination(dir string) Option { return func(o *options) { o.destination = dir } }

// WithCurlyQuotes forces curly quote conversion on.
func WithCurlyQuotes() Option { return func(o *options) { o.curlyQuotes = true } }

// --- Watcher tuning ---

// WithDebounce sets the per-path quiet period (default: 1s).
func WithDebounce(d time.Duration) Option { return func(o *options) { o.debounce = d } }

// WithMaxRetries sets how many consecutive watcher errors are tolerated
// (default: 5).
func WithMaxRetries(n int) Option { return func(o *options) { o.maxRetries = n } }

// WithRetryDelay sets the initial backoff after a watcher error
// (default: 100ms).
func WithRetryDelay(d time.Duration) Option { return func(o *options) { o.retryDelay = d } }

// --- Reporting ---

// WithLogger sets a logger for structured log output.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithOutput sets the writer for status messages and build output.
func WithOutput(w io.Writer) Option { return func(o *options) { o.out = w } }

// WithBuildHook registers a function called after every build.
func WithBuildHook(fn func(BuildResult)) Option { return func(o *options) { o.hook = fn } }

// WithBrowser builds the book once before watching and passes the path of
// its index.html to open.
func WithBrowser(open func(ctx context.Context, target string) error) Option {
	return func(o *options) { o.browser = open }
}

func applyOptions(opts []Option) (*options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = discardLogger()
	}

	if o.out == nil {
		o.out = io.Discard
	}

	if o.debounce <= 0 {
		return nil, fmt.Errorf("debounce must be positive, got %s", o.debounce)
	}

	if o.maxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative, got %d", o.maxRetries)
	}

	return o, nil
}

// Watch watches the book in dir and rebuilds it on every change until ctx
// is cancelled. It returns an error when the book cannot be loaded, the
// source directory cannot be watched, or the watcher failed too often.
func Watch(ctx context.Context, dir string, opts ...Option) error {
	o, err := applyOptions(opts)
	if err != nil {
		return err
	}

	b, err := loadBook(dir, o)
	if err != nil {
		return err
	}

	svc, err := watch.NewService(watch.ServiceOptions{
		Debounce: o.debounce,
		Logger:   o.logger,
	})
	if err != nil {
		o.logger.Error("failed to create watcher", slog.Any("error", err))

		return err
	}

	defer func() { _ = svc.Close() }()

	reg, err := registerTargets(svc, b, o.logger)
	if err != nil {
		return err
	}

	h := &rebuildHandler{ctx: ctx, out: o.out, logger: o.logger, hook: o.hook, targets: reg}

	if o.browser != nil {
		h.build("", b)

		index := filepath.Join(b.Destination(), "index.html")
		if err := o.browser(ctx, index); err != nil {
			o.logger.Warn("failed to open browser", slog.String("path", index), slog.Any("error", err))
		}
	}

	loop := watch.NewLoop[*book.Book](svc, h, b, watch.LoopOptions{
		MaxRetries:    o.maxRetries,
		RetryDelay:    o.retryDelay,
		MaxRetryDelay: o.maxRetryDelay,
		Logger:        o.logger,
		Out:           o.out,
	})

	return loop.Run(ctx)
}

// TargetsResult lists the outcome of registering a book's watch targets.
type TargetsResult struct {
	Root    string   `json:"root" yaml:"root"`
	Config  string   `json:"config,omitempty" yaml:"config,omitempty"`
	Active  []Target `json:"active" yaml:"active"`
	Skipped []Target `json:"skipped" yaml:"skipped"`
}

// Targets registers the watch targets of the book in dir with a real
// watcher, closes it again and reports which targets became active.
func Targets(dir string, opts ...Option) (*TargetsResult, error) {
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	b, err := loadBook(dir, o)
	if err != nil {
		return nil, err
	}

	svc, err := watch.NewService(watch.ServiceOptions{Logger: o.logger})
	if err != nil {
		return nil, err
	}

	defer func() { _ = svc.Close() }()

	reg, err := registerTargets(svc, b, o.logger)
	if err != nil {
		return nil, err
	}

	return &TargetsResult{
		Root:    b.Root,
		Config:  b.ConfigFile,
		Active:  append([]Target{}, reg.Active()...),
		Skipped: append([]Target{}, reg.Skipped()...),
	}, nil
}

// loadBook loads the book in dir and applies the overrides.
func loadBook(dir string, o *options) (*book.Book, error) {
	b, err := book.Load(dir)
	if err != nil {
		return nil, err
	}

	if o.destination != "" {
		b.WithDestination(o.destination)
	}

	if o.curlyQuotes {
		b.WithCurlyQuotes(true)
	}

	return b, nil
}

// registerTargets registers the book's watch targets with adder. A missing
// source directory is fatal; a missing theme or config file is skipped.
func registerTargets(adder watch.Adder, b *book.Book, logger *slog.Logger) (*watch.Registry, error) {
	reg := watch.NewRegistry(adder)

	err := reg.RegisterAll(watch.ProjectTargets(watch.Layout{
		Source:      b.Source(),
		Theme:       b.Theme(),
		ConfigFiles: b.ConfigCandidates(),
	}))
	if err != nil {
		var regErr *watch.RegistrationError
		if errors.As(err, &regErr) {
			logger.Error("failed to watch required path",
				slog.String("path", regErr.Path),
				slog.Any("error", regErr.Err),
			)
		}

		return reg, err
	}

	for _, t := range reg.Active() {
		logger.Debug("watching", slog.String("path", t.Path), slog.Bool("recursive", t.Recursive))
	}

	return reg, nil
}
