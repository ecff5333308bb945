// Package tui provides the interactive menu front-end: a full-screen
// bubbletea program listing boards, threads and posts, driven by the same
// navigation session as the shell.
package tui

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/gyokusei/nga-cli/internal/render"
	"github.com/gyokusei/nga-cli/internal/session"
)

// Options configures the TUI model.
type Options struct {
	Version        string
	ShowSignatures bool
	Rich           bool
	Logger         *slog.Logger
	// Output is the terminal the program draws on, used to detect its
	// color support. Defaults to os.Stdout.
	Output io.Writer
}

// navOp is a navigation request sent to the session.
type navOp int

const (
	opLoad navOp = iota
	opEnter
	opNext
	opPrev
	opBack
	opReload
)

func (o navOp) String() string {
	switch o {
	case opEnter:
		return "enter"
	case opNext:
		return "next page"
	case opPrev:
		return "previous page"
	case opBack:
		return "back"
	case opReload:
		return "reload"
	default:
		return "load"
	}
}

// listingLoadedMsg is returned when a navigation request finishes.
type listingLoadedMsg struct {
	op        navOp
	listing   *session.Listing
	err       error
	requestID uint64
}

// spinnerTickMsg advances the loading spinner animation.
type spinnerTickMsg struct{}

// flashClearMsg clears the flash message if its id is still current.
type flashClearMsg struct {
	id uint64
}

// spinnerFrames are the Braille dot animation frames for the loading spinner.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// spinnerInterval is how fast the spinner animates.
const spinnerInterval = 80 * time.Millisecond

// flashDuration is how long flash messages are displayed.
const flashDuration = 4 * time.Second

// Model is the bubbletea model of the menu.
type Model struct {
	ctx     context.Context
	sess    *session.Session
	printer *render.Printer
	version string
	logger  *slog.Logger

	listing  *session.Listing
	rows     []string
	cursor   int
	offset   int
	cursors  map[session.Key]int // cursor per position, restored on back
	posts    viewport.Model
	err      error // load failure with nothing to show
	showHelp bool

	loading      bool
	cancel       context.CancelFunc
	requestID    uint64
	spinnerFrame int

	flashMessage string
	flashID      uint64

	width    int
	height   int
	quitting bool

	initCmd tea.Cmd
}

// New creates the menu model for sess.
func New(ctx context.Context, sess *session.Session, opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	printer := render.NewPrinter(out, render.Options{
		Width:          100,
		ShowSignatures: opts.ShowSignatures,
		Rich:           opts.Rich,
	})
	m := Model{
		ctx:     ctx,
		sess:    sess,
		printer: printer,
		version: opts.Version,
		logger:  logger,
		cursors: make(map[session.Key]int),
		posts:   viewport.New(100, 20),
		width:   100,
		height:  24,
	}
	m, cmd := m.navigate(opLoad, 0)
	m.initCmd = cmd
	return m
}

// Init loads the listing at the session's position.
func (m Model) Init() tea.Cmd {
	return m.initCmd
}

// navigate starts op in the background. Only one request runs at a time.
func (m Model) navigate(op navOp, ordinal int) (Model, tea.Cmd) {
	m.requestID++
	requestID := m.requestID
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	sess := m.sess
	load := func() tea.Msg {
		defer cancel()
		var (
			l   *session.Listing
			err error
		)
		switch op {
		case opEnter:
			l, err = sess.Enter(ctx, ordinal)
		case opNext:
			l, err = sess.NextPage(ctx)
		case opPrev:
			l, err = sess.PrevPage(ctx)
		case opBack:
			l, err = sess.Back(ctx)
		case opReload:
			l, err = sess.Reload(ctx)
		default:
			l, err = sess.CurrentListing(ctx)
		}
		return listingLoadedMsg{op: op, listing: l, err: err, requestID: requestID}
	}
	var tick tea.Cmd
	if !m.loading {
		m.spinnerFrame = 0
		tick = spinnerTick()
	}
	m.loading = true
	return m, tea.Batch(load, tick)
}

func spinnerTick() tea.Cmd {
	return tea.Tick(spinnerInterval, func(time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.printer.SetWidth(msg.Width)
		m.posts.Width = msg.Width
		m.posts.Height = m.bodyHeight()
		m.setListing(m.listing, false)
		return m, nil

	case listingLoadedMsg:
		return m.handleLoaded(msg)

	case spinnerTickMsg:
		if !m.loading {
			return m, nil
		}
		m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		return m, spinnerTick()

	case flashClearMsg:
		if msg.id == m.flashID {
			m.flashMessage = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleLoaded(msg listingLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.requestID != m.requestID {
		return m, nil
	}
	m.loading = false
	m.cancel = nil
	if msg.err != nil {
		m.logger.Debug("menu navigation failed", "op", msg.op.String(), "error", msg.err)
		if m.listing == nil {
			m.err = msg.err
		}
		return m.flash(errorMessage(msg.err))
	}
	m.err = nil
	if m.listing != nil {
		m.cursors[m.listing.Position.Key()] = m.cursor
	}
	m.setListing(msg.listing, msg.op != opReload)
	return m, nil
}

// setListing shows l. With resetCursor the cursor goes to the position's
// remembered row, or the top.
func (m *Model) setListing(l *session.Listing, resetCursor bool) {
	m.listing = l
	if l == nil {
		return
	}
	if l.Position.Level == session.LevelThread {
		m.rows = nil
		m.posts.Height = m.bodyHeight()
		m.posts.SetContent(m.printer.Posts(l))
		if resetCursor {
			m.posts.GotoTop()
		}
		return
	}
	m.rows = m.printer.Rows(l)
	if resetCursor {
		m.cursor = m.cursors[l.Position.Key()]
		m.offset = 0
	}
	m.clampCursor()
}

// flash shows a message on the info line for a few seconds.
func (m Model) flash(text string) (Model, tea.Cmd) {
	m.flashID++
	id := m.flashID
	m.flashMessage = text
	return m, tea.Tick(flashDuration, func(time.Time) tea.Msg {
		return flashClearMsg{id: id}
	})
}

// errorMessage phrases a navigation error for the info line.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "interrupted"
	case errors.Is(err, session.ErrAtRoot):
		return "already at the board list (q to quit)"
	case errors.Is(err, session.ErrFetchFailed):
		return "error: " + err.Error() + " (nga debug last-response for details)"
	default:
		return "error: " + err.Error()
	}
}

// bodyHeight is the number of lines between the header and the info line.
func (m Model) bodyHeight() int {
	h := m.height - 4
	if h < 1 {
		h = 1
	}
	return h
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	page := m.bodyHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+page {
		m.offset = m.cursor - page + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}
