package shell

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gyokusei/nga-cli/internal/render"
	"github.com/gyokusei/nga-cli/internal/session"
)

// spinnerFrames animate the line below the prompt while a command runs.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 80 * time.Millisecond

// commandDoneMsg carries the output of a finished command.
type commandDoneMsg struct {
	output string
	quit   bool
}

type spinnerTickMsg struct{}

// Editor is the terminal line editor: a bubbletea model with a single input
// line, Tab completion, Up/Down history and Ctrl-C to interrupt a running
// command. Command output is printed above the input line.
type Editor struct {
	ctx       context.Context
	in        *Interpreter
	completer *Completer
	hist      *History
	printer   *render.Printer
	logger    *slog.Logger

	input        textinput.Model
	running      bool
	cancel       context.CancelFunc
	spinnerFrame int
	candidates   []string
	tabbed       bool // previous key was a Tab that added nothing
	width        int
	quitting     bool
	initCmd      tea.Cmd
}

// NewEditor returns an editor that runs lines through in. The first thing
// it does is list the current position.
func NewEditor(ctx context.Context, in *Interpreter, completer *Completer, hist *History, printer *render.Printer) Editor {
	ti := textinput.New()
	ti.Prompt = in.Prompt()
	ti.Placeholder = "help"
	ti.Focus()
	e := Editor{
		ctx:       ctx,
		in:        in,
		completer: completer,
		hist:      hist,
		printer:   printer,
		logger:    in.logger,
		input:     ti,
		width:     80,
	}
	e, cmd := e.start("ls")
	e.initCmd = cmd
	return e
}

// Init runs the initial listing.
func (e Editor) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, e.initCmd)
}

func (e Editor) start(line string) (Editor, tea.Cmd) {
	ctx, cancel := context.WithCancel(e.ctx)
	e.running = true
	e.cancel = cancel
	e.spinnerFrame = 0
	in := e.in
	run := func() tea.Msg {
		defer cancel()
		var buf bytes.Buffer
		quit := in.Execute(ctx, &buf, line)
		return commandDoneMsg{output: buf.String(), quit: quit}
	}
	return e, tea.Batch(run, spinnerTick())
}

func spinnerTick() tea.Cmd {
	return tea.Tick(spinnerInterval, func(time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

// fitInput sizes the input to the columns the prompt leaves free. Board
// names in the prompt are often double-width.
func (e *Editor) fitInput() {
	if e.width <= 0 {
		return
	}
	e.input.Width = max(1, e.width-lipgloss.Width(e.input.Prompt)-1)
}

// Update handles key presses and command results.
func (e Editor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		e.width = msg.Width
		e.fitInput()
		e.printer.SetWidth(msg.Width)
		return e, nil

	case spinnerTickMsg:
		if !e.running {
			return e, nil
		}
		e.spinnerFrame = (e.spinnerFrame + 1) % len(spinnerFrames)
		return e, spinnerTick()

	case commandDoneMsg:
		e.running = false
		e.cancel = nil
		e.input.Prompt = e.in.Prompt()
		e.fitInput()
		var cmds []tea.Cmd
		if out := strings.TrimRight(msg.output, "\n"); out != "" {
			cmds = append(cmds, tea.Println(out))
		}
		if msg.quit {
			e.quitting = true
			cmds = append(cmds, tea.Quit)
		}
		return e, tea.Sequence(cmds...)

	case tea.KeyMsg:
		return e.handleKey(msg)
	}

	var cmd tea.Cmd
	e.input, cmd = e.input.Update(msg)
	return e, cmd
}

func (e Editor) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if e.running {
			e.cancel()
			return e, nil
		}
		if e.input.Value() != "" {
			e.input.Reset()
			e.candidates = nil
			return e, nil
		}
		e.quitting = true
		return e, tea.Quit

	case tea.KeyCtrlD:
		if !e.running && e.input.Value() == "" {
			e.quitting = true
			return e, tea.Quit
		}
		return e, nil

	case tea.KeyEnter:
		line := e.input.Value()
		if e.running {
			return e, tea.Println(e.printer.Error("busy: " + session.ErrBusy.Error()))
		}
		if err := e.hist.Add(line); err != nil {
			e.logger.Warn("saving history failed", "error", err)
		}
		e.input.Reset()
		e.candidates = nil
		e.tabbed = false
		echo := tea.Println(e.input.Prompt + line)
		if strings.TrimSpace(line) == "" {
			return e, echo
		}
		var run tea.Cmd
		e, run = e.start(line)
		return e, tea.Sequence(echo, run)

	case tea.KeyTab:
		value := e.input.Value()
		comp := e.completer.Complete(value)
		switch {
		case comp.Line != value:
			e.input.SetValue(comp.Line)
			e.input.CursorEnd()
			e.candidates = nil
			e.tabbed = false
		case len(comp.Candidates) > 1 && e.tabbed:
			e.candidates = comp.Candidates
		default:
			e.tabbed = true
		}
		return e, nil

	case tea.KeyUp:
		if line, ok := e.hist.Prev(e.input.Value()); ok {
			e.input.SetValue(line)
			e.input.CursorEnd()
		}
		return e, nil

	case tea.KeyDown:
		if line, ok := e.hist.Next(); ok {
			e.input.SetValue(line)
			e.input.CursorEnd()
		}
		return e, nil
	}

	e.tabbed = false
	e.candidates = nil
	var cmd tea.Cmd
	e.input, cmd = e.input.Update(msg)
	return e, cmd
}

// View renders the input line, the spinner and completion candidates.
func (e Editor) View() string {
	if e.quitting {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(e.input.View())
	if e.running {
		sb.WriteString("\n")
		sb.WriteString(spinnerFrames[e.spinnerFrame] + " loading (ctrl+c to cancel)")
	}
	if len(e.candidates) > 0 {
		sb.WriteString("\n")
		sb.WriteString(render.Wrap(strings.Join(e.candidates, "  "), e.width))
	}
	return sb.String()
}

// RunTerminal runs the editor until the user quits.
func RunTerminal(ctx context.Context, e Editor, r io.Reader, w io.Writer) error {
	p := tea.NewProgram(e, tea.WithContext(ctx), tea.WithInput(r), tea.WithOutput(w))
	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil || errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return fmt.Errorf("shell: %w", err)
	}
	return nil
}

// RunLines reads commands one per line until EOF or exit. It serves input
// that is not a terminal, such as a pipe.
func RunLines(ctx context.Context, in *Interpreter, hist *History, r io.Reader, w io.Writer) error {
	in.Execute(ctx, w, "ls")
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(w, in.Prompt())
		if !sc.Scan() {
			fmt.Fprintln(w)
			return sc.Err()
		}
		line := sc.Text()
		if err := hist.Add(line); err != nil {
			in.logger.Warn("saving history failed", "error", err)
		}
		if in.Execute(ctx, w, line) {
			return nil
		}
	}
}
