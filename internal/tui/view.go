package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gyokusei/nga-cli/internal/render"
	"github.com/gyokusei/nga-cli/internal/session"
)

// Monochrome theme - adaptive for light and dark terminals
var (
	bgBase   = lipgloss.AdaptiveColor{Light: "#ffffff", Dark: "#000000"}
	bgCursor = lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#282828"}

	titleBarStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#333333"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"}).
			Padding(0, 1)

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Background(bgBase).
			Padding(0, 1)

	// Spinner style - NOT faint so it's visible
	spinnerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(bgBase)

	cursorRowStyle = lipgloss.NewStyle().
			Background(bgCursor)

	normalRowStyle = lipgloss.NewStyle().
			Background(bgBase)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Background(bgBase).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Background(bgBase)

	loadingStyle = lipgloss.NewStyle().
			Italic(true).
			Background(bgBase)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1, 2).
			Background(bgBase)

	modalTitleStyle = lipgloss.NewStyle().
			Bold(true)

	flashStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#996600", Dark: "#ffcc00"}).
			Background(bgBase)
)

// cursorMarker prefixes the selected row.
const cursorMarker = "▶ "

// View renders the screen: a two-line header, the body, an info line and
// the footer.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(m.headerView())
	sb.WriteString("\n")
	sb.WriteString(m.bodyView())
	sb.WriteString("\n")
	sb.WriteString(m.renderInfoLine())
	sb.WriteString("\n")
	sb.WriteString(m.footerView())

	if m.showHelp {
		return m.overlayModal(sb.String(), m.renderHelpModal())
	}
	return sb.String()
}

// buildTitleBar builds the title bar line (line 1 of the header).
// Format: "nga-cli [version] - Board > Thread"
func (m Model) buildTitleBar() string {
	titleText := "nga-cli"
	if m.version != "" && m.version != "dev" && m.version != "unknown" {
		titleText = fmt.Sprintf("nga-cli [%s]", m.version)
	}
	if crumb := m.buildBreadcrumb(); crumb != "" {
		titleText += " - " + crumb
	}
	return titleBarStyle.Render(padRight(titleText, m.width-2)) // -2 for padding
}

// buildBreadcrumb names the board and thread of the current position.
func (m Model) buildBreadcrumb() string {
	if m.listing == nil {
		return ""
	}
	pos := m.listing.Position
	switch pos.Level {
	case session.LevelBoard:
		return truncateRunes(boardName(m.listing), 40)
	case session.LevelThread:
		return truncateRunes(pos.BoardLabel(), 20) + " > " + truncateRunes(m.listing.Title, 40)
	default:
		return "Boards"
	}
}

func boardName(l *session.Listing) string {
	if l.Title != "" {
		return l.Title
	}
	return l.Position.BoardLabel()
}

// buildStatsString summarises the listing for the right side of line 2.
func (m Model) buildStatsString() string {
	if m.listing == nil {
		return ""
	}
	var parts []string
	if page := render.PageLabel(m.listing); page != "" {
		parts = append(parts, page)
	}
	switch m.listing.Position.Level {
	case session.LevelRoot:
		parts = append(parts, fmt.Sprintf("%d boards", m.listing.Len()))
	case session.LevelBoard:
		parts = append(parts, fmt.Sprintf("%d threads", m.listing.Len()))
	case session.LevelThread:
		parts = append(parts, fmt.Sprintf("%d posts", m.listing.Len()))
	}
	return strings.Join(parts, " | ")
}

// headerView renders a two-level header:
// Line 1: nga-cli [version] - breadcrumb
// Line 2: position | page and counts
func (m Model) headerView() string {
	line1 := m.buildTitleBar()

	where := "/"
	if m.listing != nil {
		where = m.listing.Position.String()
	}
	whereStyled := statsStyle.Render(" " + truncateRunes(where, m.width/2) + " ")
	statsStyled := statsStyle.Render(m.buildStatsString() + " ")
	gap := m.width - lipgloss.Width(whereStyled) - lipgloss.Width(statsStyled)
	if gap < 0 {
		gap = 0
	}
	line2 := whereStyled + strings.Repeat(" ", gap) + statsStyled

	return line1 + "\n" + line2
}

// bodyView renders exactly bodyHeight lines.
func (m Model) bodyView() string {
	height := m.bodyHeight()
	switch {
	case m.listing == nil && m.err != nil:
		return m.fillScreen(errorStyle.Render(padRight(errorMessage(m.err), m.width)), 1, height)
	case m.listing == nil:
		return m.fillScreen(loadingStyle.Render(padRight("Loading...", m.width)), 1, height)
	case m.isThreadView():
		return m.posts.View()
	case len(m.rows) == 0:
		return m.fillScreen(normalRowStyle.Render(padRight("(nothing here)", m.width)), 1, height)
	}

	var sb strings.Builder
	end := m.offset + height
	if end > len(m.rows) {
		end = len(m.rows)
	}
	for i := m.offset; i < end; i++ {
		if i > m.offset {
			sb.WriteString("\n")
		}
		if i == m.cursor {
			sb.WriteString(cursorRowStyle.Render(padRight(cursorMarker+m.rows[i], m.width)))
		} else {
			sb.WriteString(normalRowStyle.Render(padRight("  "+m.rows[i], m.width)))
		}
	}
	return m.fillScreen(sb.String(), end-m.offset, height)
}

// fillScreen pads content with blank lines up to height lines.
func (m Model) fillScreen(content string, usedLines, height int) string {
	var sb strings.Builder
	sb.WriteString(content)
	for i := usedLines; i < height; i++ {
		sb.WriteString("\n")
		sb.WriteString(normalRowStyle.Render(strings.Repeat(" ", m.width)))
	}
	return sb.String()
}

// footerView renders the footer with keybindings.
func (m Model) footerView() string {
	var keys []string
	var posStr string

	switch {
	case m.isThreadView():
		keys = []string{"↑/↓ scroll", "n/p page", "b back", "r reload", "? help", "q quit"}
		posStr = fmt.Sprintf(" %3.f%% ", m.posts.ScrollPercent()*100)
	case m.listing != nil && m.listing.Position.IsRoot():
		keys = []string{"↑/k", "↓/j", "Enter open", "r reload", "? help", "q quit"}
	default:
		keys = []string{"↑/k", "↓/j", "Enter open", "n/p page", "b back", "r reload", "? help"}
	}
	if !m.isThreadView() && len(m.rows) > 0 {
		posStr = fmt.Sprintf(" %d/%d ", m.cursor+1, len(m.rows))
	}

	keysStr := strings.Join(keys, " │ ")
	gap := m.width - lipgloss.Width(keysStr) - lipgloss.Width(posStr) - 2
	if gap < 0 {
		gap = 0
	}
	return footerStyle.Render(keysStr + strings.Repeat(" ", gap) + posStr)
}

// spinnerIndicator returns the current spinner frame string.
func (m Model) spinnerIndicator() string {
	if m.spinnerFrame < len(spinnerFrames) {
		return spinnerFrames[m.spinnerFrame]
	}
	return spinnerFrames[0]
}

// renderInfoLine shows the flash message, or a blank line, with a
// right-aligned spinner while a request runs.
func (m Model) renderInfoLine() string {
	contentWidth := m.width - 2
	if contentWidth < 1 {
		contentWidth = 1
	}
	content := m.flashMessage
	if m.loading {
		indicator := m.spinnerIndicator()
		gap := contentWidth - lipgloss.Width(content) - lipgloss.Width(indicator)
		if gap < 1 {
			gap = 1
		}
		content = padRight(content, lipgloss.Width(content)+gap) + spinnerStyle.Render(indicator)
	}
	if m.flashMessage != "" {
		return flashStyle.Render(" " + padRight(content, contentWidth) + " ")
	}
	return statsStyle.Render(padRight(content, contentWidth))
}

// helpLines is the help modal content. The first line is the title.
var helpLines = []string{
	"Keyboard Shortcuts",
	"",
	"  ↑/k, ↓/j    Move cursor or scroll posts",
	"  PgUp/PgDn   Page up/down",
	"  Home/End    Go to first/last",
	"  Enter/l     Open board or thread",
	"  n / p       Next/previous page",
	"  b/Esc/h     Go back",
	"  r           Reload from the forum",
	"  Ctrl+C      Cancel loading",
	"  q           Quit",
	"",
	"Press any key to close",
}

func (m Model) renderHelpModal() string {
	lines := make([]string, len(helpLines))
	copy(lines, helpLines)
	lines[0] = modalTitleStyle.Render(lines[0])
	return strings.Join(lines, "\n")
}

// overlayModal centers content in a bordered box over background.
func (m Model) overlayModal(background, content string) string {
	modal := modalStyle.Render(content)

	bgLines := strings.Split(background, "\n")
	modalLines := strings.Split(modal, "\n")

	startLine := (len(bgLines) - len(modalLines)) / 2
	if startLine < 0 {
		startLine = 0
	}
	modalWidth := lipgloss.Width(modal)
	leftPadding := (m.width - modalWidth) / 2
	if leftPadding < 0 {
		leftPadding = 0
	}

	for i, modalLine := range modalLines {
		lineIdx := startLine + i
		if lineIdx >= len(bgLines) {
			break
		}
		bgLine := bgLines[lineIdx]

		var composite strings.Builder
		if leftPadding > 0 {
			leftBg := truncateToWidth(bgLine, leftPadding)
			composite.WriteString(leftBg)
			if w := lipgloss.Width(leftBg); w < leftPadding {
				composite.WriteString(strings.Repeat(" ", leftPadding-w))
			}
		}
		composite.WriteString(modalLine)
		if rightStart := leftPadding + modalWidth; rightStart < lipgloss.Width(bgLine) {
			composite.WriteString(skipToWidth(bgLine, rightStart))
		}
		bgLines[lineIdx] = composite.String()
	}
	return strings.Join(bgLines, "\n")
}
