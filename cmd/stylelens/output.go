package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/stylelens/internal/look"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

type palette struct {
	success lipgloss.Color
	failure lipgloss.Color
	warning lipgloss.Color
	step    lipgloss.Color
	label   lipgloss.Color
	muted   lipgloss.Color
}

// Palettes follow the web UI's light and dark themes.
var palettes = map[look.Theme]palette{
	look.ThemeLight: {
		success: lipgloss.Color("#15803d"),
		failure: lipgloss.Color("#b91c1c"),
		warning: lipgloss.Color("#b45309"),
		step:    lipgloss.Color("#4338ca"),
		label:   lipgloss.Color("#111827"),
		muted:   lipgloss.Color("#6b7280"),
	},
	look.ThemeDark: {
		success: lipgloss.Color("#4ade80"),
		failure: lipgloss.Color("#f87171"),
		warning: lipgloss.Color("#fbbf24"),
		step:    lipgloss.Color("#a5b4fc"),
		label:   lipgloss.Color("#f9fafb"),
		muted:   lipgloss.Color("#9ca3af"),
	},
}

var colors = palettes[look.ThemeLight]

// usePalette switches output colors to match the server's theme.
func usePalette(t look.Theme) {
	if p, ok := palettes[t]; ok {
		colors = p
	}
}

func colorize(c lipgloss.Color, bold bool, text string) string {
	if noColor {
		return text
	}
	return lipgloss.NewStyle().Foreground(c).Bold(bold).Render(text)
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colors.success, false, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colors.failure, false, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colors.warning, false, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colors.label, true, label+":")
	fmt.Fprintf(stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colors.step, false, "→ "+msg))
}

// printResult writes an analysis and its shopping links to stdout.
func printResult(r look.AnalysisResult) {
	fmt.Fprintln(stdout, r.Text)
	if len(r.Sources) == 0 {
		return
	}
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, colorize(colors.label, true, "Shop the look"))
	for _, s := range r.Sources {
		title := s.Title
		if title == "" {
			title = s.Host()
		}
		fmt.Fprintf(stdout, "  %s %s\n", title, colorize(colors.muted, false, s.URI))
	}
}
