// Package ui decides when CLI output may use color or terminal-only
// progress markers: only when stdout is an attached TTY, color hasn't
// been explicitly disabled, and the process isn't running in CI.
package ui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// IsTTY reports whether w is a terminal. Anything other than *os.File
// (a buffer captured by tests, a pipe to another process) is never a TTY.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether the NO_COLOR convention has been set.
func DetectNoColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

// DetectCI reports whether the process looks like it's running under a CI
// runner, where color codes and carriage-return progress lines just pollute
// captured logs.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL"} {
		if _, ok := os.LookupEnv(v); ok {
			return true
		}
	}
	return false
}

// ansi codes used by Colorizer when enabled.
const (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
	ansiDim   = "\x1b[2m"
	ansiGreen = "\x1b[32m"
	ansiCyan  = "\x1b[36m"
)

// Colorizer wraps a stream of CLI output, emitting ANSI escapes only when
// that stream is an interactive terminal.
type Colorizer struct {
	enabled bool
}

// NewColorizer decides, once per command invocation, whether w may be
// colorized.
func NewColorizer(w io.Writer) Colorizer {
	return Colorizer{enabled: IsTTY(w) && !DetectNoColor() && !DetectCI()}
}

// Enabled reports whether this Colorizer will emit escapes.
func (c Colorizer) Enabled() bool { return c.enabled }

func (c Colorizer) wrap(code, s string) string {
	if !c.enabled {
		return s
	}
	return code + s + ansiReset
}

// Bold highlights a result's path.
func (c Colorizer) Bold(s string) string { return c.wrap(ansiBold, s) }

// Dim de-emphasizes supporting detail like a signature line.
func (c Colorizer) Dim(s string) string { return c.wrap(ansiDim, s) }

// Green marks a healthy/complete status.
func (c Colorizer) Green(s string) string { return c.wrap(ansiGreen, s) }

// Cyan marks a score or count.
func (c Colorizer) Cyan(s string) string { return c.wrap(ansiCyan, s) }
