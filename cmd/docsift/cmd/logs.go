package cmd

import (
	"fmt"
	"os"
	"regexp"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	serrors "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/logging"
)

type logsOptions struct {
	lines   int
	level   string
	filter  string
	noColor bool
	logFile string
}

func newLogsCmd(a *app) *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View docsift logs",
		Long: `Show the last entries of the docsift log written by runs with --debug
(~/.docsift/logs/docsift.log).

Examples:
  docsift logs                    # Show last 50 lines
  docsift logs -n 200             # Show last 200 lines
  docsift logs --level warn       # Warnings and errors only
  docsift logs --filter index_    # Filter by pattern`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, a, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only show lines matching this regex")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Path to log file")

	return cmd
}

func runLogs(cmd *cobra.Command, a *app, opts logsOptions) error {
	path, err := logging.FindLogFile(opts.logFile)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		if pattern, err = regexp.Compile(opts.filter); err != nil {
			return serrors.New(serrors.ErrCodeInvalidPattern, fmt.Sprintf("invalid filter pattern %q", opts.filter), err)
		}
	}

	w := cmd.OutOrStdout()
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: opts.noColor || a.jsonOut || !colorTerminal(w),
	}, w)

	entries, err := viewer.Tail(path, opts.lines)
	if err != nil {
		return err
	}

	if a.jsonOut {
		raw := make([]string, len(entries))
		for i, e := range entries {
			raw[i] = e.Raw
		}
		return a.output(cmd).JSON(raw)
	}
	viewer.Print(entries)
	return nil
}

func colorTerminal(w any) bool {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd())
}
