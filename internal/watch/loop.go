package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

var (
	// ErrSourceClosed is reported when the event channel has been closed.
	ErrSourceClosed = errors.New("event source closed")

	// ErrTooManyErrors is returned by Run once the source kept failing for
	// more than LoopOptions.MaxRetries consecutive attempts.
	ErrTooManyErrors = errors.New("too many consecutive watcher errors")
)

// Handler reacts to a change. OnChange runs on the loop goroutine and
// should report its own failures instead of panicking.
type Handler[P any] interface {
	OnChange(path string, project P)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[P any] func(path string, project P)

// OnChange calls f(path, project).
func (f HandlerFunc[P]) OnChange(path string, project P) { f(path, project) }

// Source delivers raw events and errors. *Service implements it.
type Source interface {
	Events() <-chan RawEvent
	Errors() <-chan error
}

// State is the dispatch loop state.
type State int32

// Loop states.
const (
	Idle State = iota
	Listening
	RunningCallback
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case RunningCallback:
		return "running-callback"
	default:
		return "idle"
	}
}

// LoopOptions configures a Loop.
type LoopOptions struct {
	// MaxRetries is the number of consecutive source failures tolerated
	// before Run gives up.
	MaxRetries int

	// RetryDelay is the first backoff delay. It doubles per failure.
	RetryDelay time.Duration

	// MaxRetryDelay caps the backoff delay.
	MaxRetryDelay time.Duration

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer
}

// DefaultLoopOptions returns sensible default loop options.
func DefaultLoopOptions() LoopOptions {
	return LoopOptions{
		MaxRetries:    5,
		RetryDelay:    100 * time.Millisecond,
		MaxRetryDelay: 5 * time.Second,
		Logger:        slog.Default(),
		Out:           os.Stderr,
	}
}

// Loop is the blocking consumer that turns events into handler calls. The
// project value is owned by the loop and only touched from Run's goroutine.
type Loop[P any] struct {
	source  Source
	handler Handler[P]
	project P
	opts    LoopOptions

	state    atomic.Int32
	failures int
}

// NewLoop creates a dispatch loop.
func NewLoop[P any](source Source, handler Handler[P], project P, opts LoopOptions) *Loop[P] {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 100 * time.Millisecond
	}

	if opts.MaxRetryDelay < opts.RetryDelay {
		opts.MaxRetryDelay = opts.RetryDelay
	}

	return &Loop[P]{
		source:  source,
		handler: handler,
		project: project,
		opts:    opts,
	}
}

// State returns the current loop state.
func (l *Loop[P]) State() State {
	return State(l.state.Load())
}

// Run announces readiness and dispatches events until the context is
// cancelled or the source failed too often. Handler calls never overlap.
func (l *Loop[P]) Run(ctx context.Context) error {
	events := l.source.Events()
	errs := l.source.Errors()

	fmt.Fprintln(l.opts.Out, "\nListening for changes...")
	l.setState(Listening)

	defer l.setState(Idle)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				if err := l.fail(ctx, ErrSourceClosed); err != nil {
					return err
				}

				continue
			}

			l.failures = 0
			l.dispatch(Normalize(ev))

		case err, ok := <-errs:
			if !ok {
				// Closed together with events; that path reports it.
				errs = nil
				continue
			}

			if err := l.fail(ctx, err); err != nil {
				return err
			}
		}
	}
}

func (l *Loop[P]) dispatch(change ChangeEvent) {
	if change.Kind == Ignored {
		return
	}

	fmt.Fprintf(l.opts.Out, "[%s] change detected: %s (%s)\n",
		time.Now().Format("15:04:05"), change.Path, change.Kind)

	l.setState(RunningCallback)
	defer l.setState(Listening)

	l.handler.OnChange(change.Path, l.project)
}

// fail logs a source failure and backs off. It returns a non-nil error once
// MaxRetries consecutive failures have been seen.
func (l *Loop[P]) fail(ctx context.Context, err error) error {
	l.failures++

	l.opts.Logger.Error("watcher error",
		slog.String("error", err.Error()),
		slog.Int("attempt", l.failures),
	)

	if l.failures > l.opts.MaxRetries {
		return fmt.Errorf("%w: %w", ErrTooManyErrors, err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(l.retryDelay(l.failures - 1)):
	}

	return nil
}

func (l *Loop[P]) retryDelay(attempt int) time.Duration {
	delay := l.opts.RetryDelay
	for i := 0; i < attempt && delay < l.opts.MaxRetryDelay; i++ {
		delay *= 2
	}

	return min(delay, l.opts.MaxRetryDelay)
}

func (l *Loop[P]) setState(s State) {
	l.state.Store(int32(s))
}
