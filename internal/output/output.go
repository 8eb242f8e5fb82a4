// Package output provides consistent CLI output: status lines, result lists
// and JSON, with colour only when writing to a terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Highlight markup produced by the search package.
const (
	matchOpen  = `<span class="match">`
	matchClose = `</span>`
)

const (
	ansiBold  = "\x1b[1m"
	ansiDim   = "\x1b[2m"
	ansiReset = "\x1b[0m"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	useColor bool
	json     bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithJSON switches structured output to JSON.
func WithJSON(enabled bool) Option {
	return func(w *Writer) { w.json = enabled }
}

// WithColor overrides terminal detection.
func WithColor(enabled bool) Option {
	return func(w *Writer) { w.useColor = enabled }
}

// New creates a new output Writer. Colour is enabled when out is a terminal
// and NO_COLOR is unset.
func New(out io.Writer, opts ...Option) *Writer {
	w := &Writer{out: out, useColor: isTerminal(out) && os.Getenv("NO_COLOR") == ""}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// JSONMode reports whether structured output is JSON.
func (w *Writer) JSONMode() bool {
	return w.json
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Code prints a block with indentation.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Item prints one numbered result line with a dimmed trailer.
func (w *Writer) Item(n int, text, trailer string) {
	if trailer != "" {
		trailer = "  " + w.dim(trailer)
	}
	_, _ = fmt.Fprintf(w.out, "%3d. %s%s\n", n, text, trailer)
}

// Detail prints an indented continuation line below an Item.
func (w *Writer) Detail(text string) {
	if text == "" {
		return
	}
	_, _ = fmt.Fprintf(w.out, "     %s\n", text)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// Highlight renders search highlight markup for the terminal: bold with
// colour, *asterisks* without. Line breaks are folded into spaces.
func (w *Writer) Highlight(s string) string {
	start, end := "*", "*"
	if w.useColor {
		start, end = ansiBold, ansiReset
	}
	s = strings.ReplaceAll(s, matchOpen, start)
	s = strings.ReplaceAll(s, matchClose, end)
	return strings.Join(strings.Fields(s), " ")
}

func (w *Writer) dim(s string) string {
	if !w.useColor {
		return s
	}
	return ansiDim + s + ansiReset
}
