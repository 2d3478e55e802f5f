package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hupe1980/bookwatch/internal/config"
	"github.com/hupe1980/bookwatch/internal/logging"
	"github.com/hupe1980/bookwatch/pkg/bookwatch"
)

type watchOptions struct {
	destDir     string
	curlyQuotes bool
	open        bool
}

func newWatchCommand() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Watch a book's sources and rebuild on changes",
		Long: `Watch monitors the source directory, the theme directory and the
book configuration file (book.toml or book.json) of the book in dir
(default: the current directory) and runs the build command whenever
one of them changes.

Bursts of events on the same file are merged: the build runs once the
file has been quiet for the --debounce interval. A failing build is
reported and watching continues. Editing the configuration file reloads
it and prints what changed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			return runWatch(cmd.Context(), cmd, dir, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.destDir, "dest-dir", "d", "", "output directory for the book (relative paths resolve against the book root)")
	f.BoolVar(&opts.curlyQuotes, "curly-quotes", false, "convert straight quotes to curly quotes")
	f.BoolVarP(&opts.open, "open", "o", false, "build once and open the book in the default web browser")

	// Bound to the global config, see config.Load.
	f.Duration("debounce", config.DefaultDebounce, "quiet period before a change triggers a rebuild")
	f.Int("max-retries", config.DefaultMaxRetries, "consecutive watcher errors tolerated before giving up")
	f.Duration("retry-delay", config.DefaultRetryDelay, "initial backoff after a watcher error")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, dir string, opts *watchOptions) error {
	cfg := config.FromContext(ctx)

	watchOpts := []bookwatch.Option{
		bookwatch.WithDestination(opts.destDir),
		bookwatch.WithDebounce(cfg.Debounce),
		bookwatch.WithMaxRetries(cfg.MaxRetries),
		bookwatch.WithRetryDelay(cfg.RetryDelay),
		bookwatch.WithLogger(logging.Component(logging.FromContext(ctx), "watch")),
		bookwatch.WithOutput(cmd.ErrOrStderr()),
	}

	if opts.curlyQuotes {
		watchOpts = append(watchOpts, bookwatch.WithCurlyQuotes())
	}

	if opts.open {
		watchOpts = append(watchOpts, bookwatch.WithBrowser(openURL))
	}

	if err := bookwatch.Watch(ctx, dir, watchOpts...); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	return nil
}
