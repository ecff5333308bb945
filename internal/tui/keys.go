package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/gyokusei/nga-cli/internal/session"
)

// handleKey dispatches a key press.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		if m.loading && m.cancel != nil {
			m.cancel()
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit
	}

	if m.showHelp {
		switch key {
		case "q":
			m.quitting = true
			return m, tea.Quit
		default:
			m.showHelp = false
		}
		return m, nil
	}

	switch key {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "?":
		m.showHelp = true
		return m, nil
	}

	if m.isThreadView() {
		if m.scrollPosts(key) {
			return m, nil
		}
	} else if m.moveCursor(key) {
		return m, nil
	}

	switch key {
	case "enter", "l", "right":
		return m.request(opEnter)
	case "n":
		return m.request(opNext)
	case "p":
		return m.request(opPrev)
	case "b", "esc", "h", "left", "backspace":
		return m.request(opBack)
	case "r":
		return m.request(opReload)
	}
	return m, nil
}

// request starts a navigation unless one is already running.
func (m Model) request(op navOp) (tea.Model, tea.Cmd) {
	if m.loading {
		return m.flash("busy: " + session.ErrBusy.Error())
	}
	ordinal := 0
	if op == opEnter {
		if m.isThreadView() || len(m.rows) == 0 {
			return m, nil
		}
		ordinal = m.cursor + 1
	}
	return m.navigate(op, ordinal)
}

func (m Model) isThreadView() bool {
	return m.listing != nil && m.listing.Position.Level == session.LevelThread
}

// moveCursor handles cursor keys on board and thread lists. It reports
// whether key was one of them.
func (m *Model) moveCursor(key string) bool {
	page := m.bodyHeight()
	switch key {
	case "up", "k":
		m.cursor--
	case "down", "j":
		m.cursor++
	case "pgup", "ctrl+u":
		m.cursor -= page
	case "pgdown", "ctrl+d", " ":
		m.cursor += page
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = len(m.rows) - 1
	default:
		return false
	}
	m.clampCursor()
	return true
}

// scrollPosts handles scrolling keys on a post page.
func (m *Model) scrollPosts(key string) bool {
	switch key {
	case "up", "k":
		m.posts.ScrollUp(1)
	case "down", "j":
		m.posts.ScrollDown(1)
	case "pgup", "ctrl+u":
		m.posts.PageUp()
	case "pgdown", "ctrl+d", " ":
		m.posts.PageDown()
	case "home", "g":
		m.posts.GotoTop()
	case "end", "G":
		m.posts.GotoBottom()
	default:
		return false
	}
	return true
}
