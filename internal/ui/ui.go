// Package ui renders CLI output: styled messages, tables and the
// interactive review of unrenamed files.
package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// Detect if we're in a terminal
	isTerminal   = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	colorEnabled = true

	titleCaser = cases.Title(language.English)
)

// DisableColors disables all color output
func DisableColors() {
	colorEnabled = false
	isTerminal = false
	initStyles()
}

// IsTerminal checks if stdout is a terminal
func IsTerminal() bool {
	return isTerminal && colorEnabled
}

// Section prints a section header
func Section(title string) {
	fmt.Fprintln(Out)
	if IsTerminal() {
		fmt.Fprintln(Out, Action("━━━ "+strings.ToUpper(title)+" ━━━"))
		return
	}
	fmt.Fprintln(Out, strings.ToUpper(title))
	fmt.Fprintln(Out, strings.Repeat("=", len(title)))
}

// Label turns an identifier such as "partially_failed" into "Partially Failed".
func Label(s string) string {
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}

// FormatBytes formats bytes to human-readable format using go-humanize
func FormatBytes(bytes uint64) string {
	return humanize.Bytes(bytes)
}

// FormatCount formats an integer with thousands separators.
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}

// FormatAge formats t relative to now ("3 minutes ago").
func FormatAge(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// FormatDuration formats duration to human-readable format
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

// Confirm prompts for a yes/no answer on in. Anything but y or yes is no.
func Confirm(in io.Reader, prompt string) bool {
	fmt.Fprint(Out, prompt+" (y/N): ")
	response, _ := bufio.NewReader(in).ReadString('\n')
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
