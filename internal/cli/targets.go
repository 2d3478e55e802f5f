package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/bookwatch/internal/logging"
	"github.com/hupe1980/bookwatch/internal/output"
	"github.com/hupe1980/bookwatch/pkg/bookwatch"
)

func newTargetsCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "targets [dir]",
		Short: "List the paths that watch would monitor",
		Long: `Targets resolves the watch targets of the book in dir (default: the
current directory), registers them with a real watcher and reports which
ones are active and which were skipped because they do not exist.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			return runTargets(cmd, dir, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text, yaml, json")

	return cmd
}

func runTargets(cmd *cobra.Command, dir, format string) error {
	if format != "text" {
		if _, err := output.Lookup(format); err != nil {
			return &ExitError{Code: 2, Err: err}
		}
	}

	logger := logging.Component(logging.FromContext(cmd.Context()), "targets")

	result, err := bookwatch.Targets(dir, bookwatch.WithLogger(logger))
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	if format == "text" {
		return writeTargetsText(cmd.OutOrStdout(), result)
	}

	return output.Render(cmd.OutOrStdout(), format, result)
}

func writeTargetsText(w io.Writer, result *bookwatch.TargetsResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "STATUS\tRECURSIVE\tREQUIRED\tPATH")

	for _, t := range result.Active {
		fmt.Fprintf(tw, "active\t%t\t%t\t%s\n", t.Recursive, t.Required, t.Path)
	}

	for _, t := range result.Skipped {
		fmt.Fprintf(tw, "skipped\t%t\t%t\t%s\n", t.Recursive, t.Required, t.Path)
	}

	return tw.Flush()
}
