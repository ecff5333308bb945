package tui

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gyokusei/nga-cli/internal/forum"
	"github.com/gyokusei/nga-cli/internal/forum/forumtest"
	"github.com/gyokusei/nga-cli/internal/session"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// newTestGateway serves boards 1..2. Board 2 has two pages of threads and
// thread 202 one page of posts.
func newTestGateway() *forumtest.MockGateway {
	return forumtest.New().
		WithBoards(forumtest.Boards(2)...).
		WithThreadPage(1, forumtest.ThreadPage(1, 1, false, 101)).
		WithThreadPage(2, forumtest.ThreadPage(2, 1, true, 201, 202)).
		WithThreadPage(2, forumtest.ThreadPage(2, 2, false, 203)).
		WithPostPage(202, forumtest.PostPage(202, 1, 3, false))
}

// TestModelBuilder helps construct loaded Model instances for testing.
type TestModelBuilder struct {
	gw     forum.Gateway
	width  int
	height int
}

// NewBuilder creates a builder with the standard test gateway and an 80x24
// screen.
func NewBuilder() *TestModelBuilder {
	return &TestModelBuilder{gw: newTestGateway(), width: 80, height: 24}
}

func (b *TestModelBuilder) WithGateway(gw forum.Gateway) *TestModelBuilder {
	b.gw = gw
	return b
}

func (b *TestModelBuilder) WithSize(width, height int) *TestModelBuilder {
	b.width = width
	b.height = height
	return b
}

// Build returns a model that has finished its initial load.
func (b *TestModelBuilder) Build(t *testing.T) Model {
	t.Helper()
	m := New(context.Background(), session.New(b.gw), Options{Version: "test"})
	m = resizeModel(t, m, b.width, b.height)
	return settle(t, m, m.Init())
}

// awaitLoad runs cmd and the commands it batches concurrently until one of
// them yields a listingLoadedMsg. Spinner ticks are left running.
func awaitLoad(t *testing.T, cmd tea.Cmd) listingLoadedMsg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command, got nil")
	}
	msgs := make(chan tea.Msg, 16)
	var run func(tea.Cmd)
	run = func(c tea.Cmd) {
		if c == nil {
			return
		}
		go func() {
			msg := c()
			if batch, ok := msg.(tea.BatchMsg); ok {
				for _, sub := range batch {
					run(sub)
				}
				return
			}
			select {
			case msgs <- msg:
			default:
			}
		}()
	}
	run(cmd)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg := <-msgs:
			if loaded, ok := msg.(listingLoadedMsg); ok {
				return loaded
			}
		case <-timeout:
			t.Fatal("timed out waiting for listing to load")
			return listingLoadedMsg{}
		}
	}
}

// settle feeds the result of a navigation command back into m.
func settle(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	return sendMsg(t, m, awaitLoad(t, cmd))
}

func sendMsg(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	updated, _ := m.Update(msg)
	return updated.(Model)
}

func sendKey(t *testing.T, m Model, k tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(k)
	return updated.(Model), cmd
}

// press sends k and, when it starts a navigation, waits for it to finish.
func press(t *testing.T, m Model, k tea.KeyMsg) Model {
	t.Helper()
	m, cmd := sendKey(t, m, k)
	if !m.loading {
		return m
	}
	return settle(t, m, cmd)
}

func resizeModel(t *testing.T, m Model, w, h int) Model {
	t.Helper()
	return sendMsg(t, m, tea.WindowSizeMsg{Width: w, Height: h})
}

func key(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func keyEnter() tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyEnter} }
func keyEsc() tea.KeyMsg   { return tea.KeyMsg{Type: tea.KeyEsc} }
func keyCtrlC() tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyCtrlC} }

func countViewLines(view string) int {
	return strings.Count(view, "\n") + 1
}

func assertViewContains(t *testing.T, m Model, want ...string) {
	t.Helper()
	view := stripANSI(m.View())
	for _, w := range want {
		if !strings.Contains(view, w) {
			t.Errorf("view missing %q:\n%s", w, view)
		}
	}
}

func assertPosition(t *testing.T, m Model, want session.Position) {
	t.Helper()
	if m.listing == nil {
		t.Fatal("no listing shown")
	}
	if got := m.listing.Position; !got.Same(want) {
		t.Errorf("position = %s, want %s", got, want)
	}
}

func assertCursor(t *testing.T, m Model, want int) {
	t.Helper()
	if m.cursor != want {
		t.Errorf("cursor = %d, want %d", m.cursor, want)
	}
}
