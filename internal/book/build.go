package book

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// ErrNoBuildCommand is returned when the settings carry an empty command.
var ErrNoBuildCommand = errors.New("no build command configured")

// BuildCommand returns the build argv with ${ROOT}, ${SOURCE_DIR} and
// ${DEST_DIR} expanded. Other variables come from the environment.
func (b *Book) BuildCommand() []string {
	vars := map[string]string{
		"ROOT":       b.Root,
		"SOURCE_DIR": b.Source(),
		"DEST_DIR":   b.Destination(),
	}

	argv := make([]string, 0, len(b.Settings.Command))
	for _, arg := range b.Settings.Command {
		argv = append(argv, os.Expand(arg, func(key string) string {
			if v, ok := vars[key]; ok {
				return v
			}

			return os.Getenv(key)
		}))
	}

	return argv
}

// Build runs the build command in the book root with its output going to
// out. The result is recorded on the book.
func (b *Book) Build(ctx context.Context, out io.Writer) error {
	argv := b.BuildCommand()
	if len(argv) == 0 {
		b.record(time.Now(), ErrNoBuildCommand)
		return ErrNoBuildCommand
	}

	if b.Settings.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, b.Settings.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec
	cmd.Dir = b.Root
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Env = append(os.Environ(),
		"BOOKWATCH_ROOT="+b.Root,
		"BOOKWATCH_SOURCE_DIR="+b.Source(),
		"BOOKWATCH_DEST_DIR="+b.Destination(),
		"BOOKWATCH_CURLY_QUOTES="+strconv.FormatBool(b.CurlyQuotes()),
	)

	start := time.Now()

	err := cmd.Run()
	if err != nil {
		err = fmt.Errorf("running %s: %w", argv[0], err)
	}

	b.record(start, err)

	return err
}

func (b *Book) record(start time.Time, err error) {
	b.Builds++
	b.LastBuild = start
	b.LastErr = err
}
