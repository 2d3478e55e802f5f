package bookwatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hupe1980/bookwatch/internal/book"
	"github.com/hupe1980/bookwatch/internal/watch"
)

// rebuildHandler rebuilds the book for every change. Build failures are
// reported and never stop the loop. When a config reload moves the source
// or theme directory, the new one is registered with targets.
type rebuildHandler struct {
	ctx     context.Context
	out     io.Writer
	logger  *slog.Logger
	hook    func(BuildResult)
	targets *watch.Registry
}

func (h *rebuildHandler) OnChange(path string, b *book.Book) {
	fmt.Fprintf(h.out, "File changed: %s\n", path)

	if b.IsConfigFile(path) {
		h.reload(b)
	}

	h.build(path, b)
}

func (h *rebuildHandler) build(path string, b *book.Book) {
	fmt.Fprintln(h.out, "Building book...")

	if err := b.Build(h.ctx, h.out); err != nil {
		fmt.Fprintf(h.out, "Error while building: %v\n", err)
	} else {
		h.logger.Debug("build finished",
			slog.Int("builds", b.Builds),
			slog.Time("started", b.LastBuild),
			slog.String("destination", b.Destination()),
		)
	}

	if h.hook != nil {
		h.hook(BuildResult{Path: path, Builds: b.Builds, Started: b.LastBuild, Err: b.LastErr})
	}
}

func (h *rebuildHandler) reload(b *book.Book) {
	source, theme := b.Source(), b.Theme()

	diff, err := b.Reload()
	if err != nil {
		h.logger.Warn("keeping previous book config", slog.Any("error", err))

		return
	}

	if diff == "" {
		return
	}

	fmt.Fprintf(h.out, "Book config changed:\n%s\n", diff)

	h.retarget(b, source, theme)
}

// retarget registers the source and theme directories again when a reload
// moved them. The previous directories stay watched.
func (h *rebuildHandler) retarget(b *book.Book, source, theme string) {
	if h.targets == nil {
		return
	}

	if next := b.Source(); next != source {
		if err := h.targets.RegisterRequired(next, true); err != nil {
			h.logger.Error("failed to watch new source directory",
				slog.String("path", next),
				slog.Any("error", err),
			)
		}
	}

	if next := b.Theme(); next != "" && next != theme {
		if !h.targets.RegisterOptional(next, true) {
			h.logger.Debug("new theme directory not watched", slog.String("path", next))
		}
	}
}
