// Package ui renders civharvest's terminal output: styled status lines, a
// single-line harvest progress display and, in package tui, a full-screen
// dashboard.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Logo is printed at the top of interactive commands.
const Logo = `
   ┌─┐┬┬  ┬┬ ┬┌─┐┬─┐┬  ┬┌─┐┌─┐┌┬┐
   │  │└┐┌┘├─┤├─┤├┬┘└┐┌┘├┤ └─┐ │
   └─┘┴ └┘ ┴ ┴┴ ┴┴└─ └┘ └─┘└─┘ ┴
   CivitAI collection harvester
`

var (
	cyan    = lipgloss.Color("#00D7FF")
	yellow  = lipgloss.Color("#FFD700")
	red     = lipgloss.Color("#FF5F5F")
	green   = lipgloss.Color("#5FFF87")
	magenta = lipgloss.Color("#FF5FD7")
	grey    = lipgloss.Color("#8A8A8A")

	logoStyle      = lipgloss.NewStyle().Foreground(cyan).Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(cyan)
	valueStyle     = lipgloss.NewStyle().Foreground(yellow)
	errorStyle     = lipgloss.NewStyle().Foreground(red).Bold(true)
	successStyle   = lipgloss.NewStyle().Foreground(green).Bold(true)
	warningStyle   = lipgloss.NewStyle().Foreground(yellow)
	highlightStyle = lipgloss.NewStyle().Foreground(magenta).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(grey)
)

// Color helpers for inline use.
func Cyan(s string) string    { return labelStyle.Render(s) }
func Yellow(s string) string  { return valueStyle.Render(s) }
func Red(s string) string     { return errorStyle.Render(s) }
func Green(s string) string   { return successStyle.Render(s) }
func Magenta(s string) string { return highlightStyle.Render(s) }
func Dim(s string) string     { return dimStyle.Render(s) }

var (
	mu    sync.Mutex
	out   io.Writer = os.Stderr
	quiet bool
)

// SetOutput redirects status output. Records never go through this package.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetQuietMode suppresses everything but errors.
func SetQuietMode(q bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = q
}

// IsQuiet reports whether quiet mode is on.
func IsQuiet() bool {
	mu.Lock()
	defer mu.Unlock()
	return quiet
}

func write(always bool, s string) {
	mu.Lock()
	defer mu.Unlock()
	if quiet && !always {
		return
	}
	fmt.Fprintln(out, s)
}

// PrintLogo prints the banner
func PrintLogo() {
	write(false, logoStyle.Render(Logo))
}

// PrintError prints an error message, with an optional detail.
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf("%s: %v", msg, args[0])
	}
	write(true, errorStyle.Render("✗ "+msg))
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	write(false, successStyle.Render("✓ "+msg))
}

// PrintInfo prints a label/value pair.
func PrintInfo(label string, value string) {
	write(false, fmt.Sprintf("%s: %s", labelStyle.Render(label), valueStyle.Render(value)))
}

// PrintWarning prints a warning message, with an optional detail.
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf("%s: %v", msg, args[0])
	}
	write(false, warningStyle.Render("⚠ "+msg))
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	write(false, highlightStyle.Render(msg))
}

// PrintPlain prints msg unstyled, subject to quiet mode.
func PrintPlain(msg string) {
	write(false, msg)
}
