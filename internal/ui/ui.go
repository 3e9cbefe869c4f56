// Package ui provides themed terminal rendering for the CLI.
package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Palette holds the colors a theme renders with.
type Palette struct {
	Accent lipgloss.Color
	Pass   lipgloss.Color
	Warn   lipgloss.Color
	Fail   lipgloss.Color
	Muted  lipgloss.Color
}

var palettes = map[string]Palette{
	"default": {
		Accent: lipgloss.Color("12"),
		Pass:   lipgloss.Color("10"),
		Warn:   lipgloss.Color("11"),
		Fail:   lipgloss.Color("9"),
		Muted:  lipgloss.Color("8"),
	},
	"solarized": {
		Accent: lipgloss.Color("33"),
		Pass:   lipgloss.Color("64"),
		Warn:   lipgloss.Color("136"),
		Fail:   lipgloss.Color("160"),
		Muted:  lipgloss.Color("240"),
	},
	"mono": {},
}

var (
	active  = palettes["default"]
	noColor = termenv.EnvColorProfile() == termenv.Ascii
)

// SetTheme selects the render palette. Unknown names keep the default.
func SetTheme(name string) {
	if p, ok := palettes[name]; ok {
		active = p
	}
}

// DisableColor forces plain output regardless of terminal support.
func DisableColor() {
	noColor = true
}

func render(c lipgloss.Color, bold bool, s string) string {
	if noColor || c == "" {
		return s
	}
	style := lipgloss.NewStyle().Foreground(c)
	if bold {
		style = style.Bold(true)
	}
	return style.Render(s)
}

// RenderAccent highlights identifiers and counts.
func RenderAccent(s string) string { return render(active.Accent, false, s) }

// RenderPass marks success.
func RenderPass(s string) string { return render(active.Pass, true, s) }

// RenderWarn marks warnings and stale data.
func RenderWarn(s string) string { return render(active.Warn, true, s) }

// RenderFail marks errors.
func RenderFail(s string) string { return render(active.Fail, true, s) }

// RenderMuted dims supporting detail.
func RenderMuted(s string) string { return render(active.Muted, false, s) }

// Width returns the terminal width, or 80 when not attached to one.
func Width() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// Rule renders a horizontal separator sized to the terminal.
func Rule() string {
	w := Width()
	if w > 60 {
		w = 60
	}
	return RenderMuted(strings.Repeat("─", w))
}
