package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"
)

// PadRight pads a string with spaces to fill width terminal cells.
// Uses lipgloss.Width to correctly handle ANSI codes and full-width characters.
func PadRight(s string, width int) string {
	sw := lipgloss.Width(s)
	if sw >= width {
		return ansi.Truncate(s, width, "")
	}
	return s + strings.Repeat(" ", width-sw)
}

// PadLeft right-aligns s in width cells.
func PadLeft(s string, width int) string {
	sw := lipgloss.Width(s)
	if sw >= width {
		return s
	}
	return strings.Repeat(" ", width-sw) + s
}

// Truncate fits s into maxWidth terminal cells, flattening line breaks.
// Full-width characters (CJK, emoji) count as two cells.
func Truncate(s string, maxWidth int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\t", " ")

	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// Wrap wraps text to width cells, breaking at spaces where possible and
// hard-breaking runs without spaces (most Chinese text).
func Wrap(text string, width int) string {
	if width <= 0 {
		width = 80
	}
	return wrap.String(wordwrap.String(text, width), width)
}

// Indent indents every line of s by n spaces.
func Indent(s string, n int) string {
	if n <= 0 {
		return s
	}
	return indent.String(s, uint(n))
}

// FormatTime renders a post time, or "-" when unknown.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// FormatCount formats a count compactly (e.g., "1.5K", "2.3M").
func FormatCount(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// FloorLabel names a floor: the opening post, or "#n".
func FloorLabel(floor int) string {
	if floor == 0 {
		return "OP"
	}
	return fmt.Sprintf("#%d", floor)
}
