package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/gyokusei/nga-cli/internal/forum"
	"github.com/gyokusei/nga-cli/internal/render"
	"github.com/gyokusei/nga-cli/internal/session"
)

// Favorites is the user's saved board list. The interpreter changes it
// through this interface only; persistence is the implementation's concern.
type Favorites interface {
	List() []forum.Board
	// Add saves a board. An empty name is looked up by id.
	Add(ctx context.Context, b forum.Board) (forum.Board, error)
	// Remove deletes a board and reports whether it was saved.
	Remove(id int) (bool, error)
}

// errQuit ends the command loop.
var errQuit = errors.New("quit")

type command struct {
	name    string
	aliases []string
	usage   string
	summary string
	run     func(ctx context.Context, in *Interpreter, w io.Writer, args []string) error
}

// Interpreter runs shell command lines against a session.
type Interpreter struct {
	sess      *session.Session
	printer   *render.Printer
	favorites Favorites
	logger    *slog.Logger
	commands  map[string]*command
	ordered   []*command
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithFavorites enables the fav command and favorite names for cd.
func WithFavorites(f Favorites) Option {
	return func(in *Interpreter) {
		in.favorites = f
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(in *Interpreter) {
		in.logger = logger
	}
}

// New returns an interpreter for sess that formats output with printer.
func New(sess *session.Session, printer *render.Printer, opts ...Option) *Interpreter {
	in := &Interpreter{
		sess:     sess,
		printer:  printer,
		logger:   slog.Default(),
		commands: make(map[string]*command),
	}
	for _, opt := range opts {
		opt(in)
	}
	in.ordered = []*command{
		{name: "ls", usage: "ls", summary: "list the current board list, board or thread", run: cmdList},
		{name: "cd", usage: "cd <fid|name|..>", summary: "open a board by id or name, a thread by name, or go back with ..", run: cmdChangeDir},
		{name: "cat", usage: "cat <n>", summary: "open entry n of the listing", run: cmdCat},
		{name: "n", usage: "n", summary: "next page", run: cmdNext},
		{name: "p", usage: "p", summary: "previous page", run: cmdPrev},
		{name: "b", aliases: []string{"back"}, usage: "b", summary: "go back to where you came from", run: cmdBack},
		{name: "reload", usage: "reload", summary: "fetch the current page again", run: cmdReload},
		{name: "fav", usage: "fav [add|rm] [fid]", summary: "list, add or remove favorite boards", run: cmdFav},
		{name: "debug", usage: "debug [request|response]", summary: "show the last request and response", run: cmdDebug},
		{name: "help", usage: "help", summary: "show this help", run: cmdHelp},
		{name: "exit", aliases: []string{"q"}, usage: "exit", summary: "leave the shell", run: cmdExit},
	}
	for _, c := range in.ordered {
		in.commands[c.name] = c
		for _, a := range c.aliases {
			in.commands[a] = c
		}
	}
	return in
}

// Session returns the session the interpreter drives.
func (in *Interpreter) Session() *session.Session {
	return in.sess
}

// CommandNames returns every command name and alias, sorted.
func (in *Interpreter) CommandNames() []string {
	names := make([]string, 0, len(in.commands))
	for name := range in.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs one line and writes its output to w. Failures are printed,
// never returned; quit reports whether the line asked to leave.
func (in *Interpreter) Execute(ctx context.Context, w io.Writer, line string) (quit bool) {
	args, err := Tokenize(line)
	if err != nil {
		in.report(w, err)
		return false
	}
	if len(args) == 0 {
		return false
	}
	c, ok := in.commands[args[0]]
	if !ok {
		in.report(w, fmt.Errorf("%w: %s (try help)", ErrUnknownCommand, args[0]))
		return false
	}
	in.logger.Debug("shell command", "command", c.name, "args", args[1:], "position", in.sess.Position().String())
	err = c.run(ctx, in, w, args[1:])
	if errors.Is(err, errQuit) {
		return true
	}
	if err != nil {
		in.report(w, err)
	}
	return false
}

// Prompt describes the current position, e.g. "nga:/网事杂谈/标题 p2> ".
func (in *Interpreter) Prompt() string {
	return Prompt(in.sess.Position())
}

// Prompt formats the prompt for a position.
func Prompt(p session.Position) string {
	const nameWidth = 20
	path := "/"
	switch p.Level {
	case session.LevelBoard:
		path = "/" + render.Truncate(p.BoardLabel(), nameWidth)
	case session.LevelThread:
		path = "/" + render.Truncate(p.BoardLabel(), nameWidth) + "/" + render.Truncate(p.ThreadLabel(), nameWidth)
	}
	if !p.IsRoot() && p.Page > 1 {
		path += " p" + strconv.Itoa(p.Page)
	}
	return "nga:" + path + "> "
}

// report prints err as a single message. Nothing is dropped: every error
// reaching here is shown.
func (in *Interpreter) report(w io.Writer, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, context.Canceled):
		msg = "interrupted"
	case errors.Is(err, session.ErrBusy):
		msg = "busy: " + msg
	}
	fmt.Fprintln(w, in.printer.Error(msg))
	if errors.Is(err, session.ErrFetchFailed) && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(w, in.printer.Info("run `debug` to see the last request and response"))
	}
	in.logger.Debug("shell command failed", "error", err)
}

func (in *Interpreter) show(w io.Writer, l *session.Listing) {
	fmt.Fprint(w, in.printer.Listing(l))
}

func usageError(usage string) error {
	return fmt.Errorf("%w: usage: %s", ErrParse, usage)
}

func noArgs(name string, args []string) error {
	if len(args) > 0 {
		return usageError(name)
	}
	return nil
}

func cmdList(ctx context.Context, in *Interpreter, w io.Writer, args []string) error {
	if err := noArgs("ls", args); err != nil {
		return err
	}
	l, err := in.sess.CurrentListing(ctx)
	if err != nil {
		return err
	}
	in.show(w, l)
	return nil
}

func cmdCat(ctx context.Context, in *Interpreter, w io.Writer, args []string) error {
	if len(args) != 1 {
		return usageError("cat <n>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: %q is not a number", session.ErrInvalidSelection, args[0])
	}
	l, err := in.sess.Enter(ctx, n)
	if err != nil {
		return err
	}
	in.show(w, l)
	return nil
}

func cmdChangeDir(ctx context.Context, in *Interpreter, w io.Writer, args []string) error {
	if len(args) != 1 {
		return usageError("cd <fid|name|..>")
	}
	arg := args[0]
	if arg == ".." {
		return cmdBack(ctx, in, w, nil)
	}
	if pos := in.sess.Position(); pos.Level == session.LevelThread {
		return fmt.Errorf("%w: cd works from the board list or a board, use b to leave the thread", session.ErrInvalidSelection)
	}

	var (
		l   *session.Listing
		err error
	)
	if id, convErr := strconv.Atoi(arg); convErr == nil {
		l, err = in.sess.EnterByID(ctx, id, session.KindBoard)
	} else {
		var t target
		t, err = in.resolve(arg)
		if err != nil {
			return err
		}
		l, err = in.sess.EnterByID(ctx, t.id, t.kind)
	}
	if err != nil {
		return err
	}
	in.show(w, l)
	return nil
}

func cmdNext(ctx context.Context, in *Interpreter, w io.Writer, args []string) error {
	if err := noArgs("n", args); err != nil {
		return err
	}
	l, err := in.sess.NextPage(ctx)
	if err != nil {
		return err
	}
	in.show(w, l)
	return nil
}

func cmdPrev(ctx context.Context, in *Interpreter, w io.Writer, args []string) error {
	if err := noArgs("p", args); err != nil {
		return err
	}
	l, err := in.sess.PrevPage(ctx)
	if err != nil {
		return err
	}
	in.show(w, l)
	return nil
}

func cmdBack(ctx context.Context, in *Interpreter, w io.Writer, args []string) error {
	if err := noArgs("b", args); err != nil {
		return err
	}
	l, err := in.sess.Back(ctx)
	if err != nil {
		return err
	}
	in.show(w, l)
	return nil
}

func cmdReload(ctx context.Context, in *Interpreter, w io.Writer, args []string) error {
	if err := noArgs("reload", args); err != nil {
		return err
	}
	l, err := in.sess.Reload(ctx)
	if err != nil {
		return err
	}
	in.show(w, l)
	return nil
}

func cmdFav(ctx context.Context, in *Interpreter, w io.Writer, args []string) error {
	if in.favorites == nil {
		return errors.New("favorites are not available")
	}
	if len(args) == 0 {
		favs := in.favorites.List()
		if len(favs) == 0 {
			fmt.Fprintln(w, "no favorites yet, add one with fav add <fid>")
			return nil
		}
		for _, b := range favs {
			fmt.Fprintf(w, "%s  fid %d\n", b.Name, b.ID)
		}
		return nil
	}
	if len(args) > 2 || (args[0] != "add" && args[0] != "rm") {
		return usageError("fav [add|rm] [fid]")
	}

	pos := in.sess.Position()
	b := forum.Board{ID: pos.BoardID, Name: pos.BoardName}
	if len(args) == 2 {
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%w: %q is not a board id", session.ErrInvalidSelection, args[1])
		}
		b = forum.Board{ID: id}
	} else if pos.IsRoot() {
		return fmt.Errorf("%w: not inside a board, give a fid", session.ErrInvalidSelection)
	}

	switch args[0] {
	case "add":
		saved, err := in.favorites.Add(ctx, b)
		if err != nil {
			return fmt.Errorf("add favorite: %w", err)
		}
		fmt.Fprintln(w, in.printer.Info(fmt.Sprintf("added %s (fid %d)", saved.Name, saved.ID)))
	case "rm":
		removed, err := in.favorites.Remove(b.ID)
		if err != nil {
			return fmt.Errorf("remove favorite: %w", err)
		}
		if !removed {
			return fmt.Errorf("%w: fid %d is not a favorite", session.ErrInvalidSelection, b.ID)
		}
		fmt.Fprintln(w, in.printer.Info(fmt.Sprintf("removed fid %d", b.ID)))
	}
	// The root listing shows the favorites.
	in.sess.Forget(session.Root())
	return nil
}

func cmdDebug(_ context.Context, in *Interpreter, w io.Writer, args []string) error {
	part := ""
	if len(args) == 1 {
		part = args[0]
	}
	if len(args) > 1 || (part != "" && part != "request" && part != "response") {
		return usageError("debug [request|response]")
	}
	rec := in.sess.DebugRecord()
	if rec.Exchange.Empty() {
		fmt.Fprintln(w, "nothing fetched yet")
		return nil
	}
	switch part {
	case "request":
		fmt.Fprint(w, render.ExchangeRequest(rec.Exchange))
	case "response":
		fmt.Fprint(w, render.ExchangeResponse(rec.Exchange))
	default:
		fmt.Fprintf(w, "at %s\n", rec.Position)
		fmt.Fprint(w, render.ExchangeRequest(rec.Exchange))
		fmt.Fprintln(w)
		fmt.Fprint(w, render.ExchangeResponse(rec.Exchange))
	}
	return nil
}

func cmdHelp(_ context.Context, in *Interpreter, w io.Writer, args []string) error {
	width := 0
	for _, c := range in.ordered {
		if n := len(c.usage); n > width {
			width = n
		}
	}
	fmt.Fprintln(w, "commands:")
	for _, c := range in.ordered {
		line := fmt.Sprintf("  %-*s  %s", width, c.usage, c.summary)
		if len(c.aliases) > 0 {
			line += " (also " + strings.Join(c.aliases, ", ") + ")"
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func cmdExit(_ context.Context, _ *Interpreter, _ io.Writer, args []string) error {
	return errQuit
}
