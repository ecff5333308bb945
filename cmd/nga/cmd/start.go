package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/gyokusei/nga-cli/internal/config"
	"github.com/gyokusei/nga-cli/internal/nga"
	"github.com/gyokusei/nga-cli/internal/render"
	"github.com/gyokusei/nga-cli/internal/session"
	"github.com/gyokusei/nga-cli/internal/shell"
	"github.com/gyokusei/nga-cli/internal/store"
	"github.com/gyokusei/nga-cli/internal/tui"
)

var startMode string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Open the forum browser",
	Long: `Open the forum browser in the configured display mode.

The interactive mode is a full-screen menu: arrows move, Enter opens,
n/p change page, b goes back. The shell mode reads commands:

  ls             list the current board, thread list or posts
  cd <name|id>   open a board or thread, cd .. goes back
  cat <n>        open entry n of the last listing
  n / p          next and previous page
  b              back
  debug          show the last request and response

The cookie is checked against the forum before anything is shown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart(cmd.Context(), startMode)
	},
}

func runStart(ctx context.Context, mode string) error {
	if mode == "" {
		mode = cfg.Display.Mode
	}
	if mode != config.ModeShell && mode != config.ModeInteractive {
		return fmt.Errorf("unknown mode %q (want %s or %s)", mode, config.ModeShell, config.ModeInteractive)
	}

	if err := cfg.ValidateCookie(); err != nil {
		if errors.Is(err, config.ErrCookieMissing) {
			return fmt.Errorf("%w: run 'nga config' to set it", err)
		}
		return fmt.Errorf("invalid cookie: %w (run 'nga config' to set it again)", err)
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()
	logger.Debug("database opened", "path", st.Path())

	client, err := newClient()
	if err != nil {
		return err
	}

	user, err := client.VerifyLogin(ctx)
	if saveErr := st.SaveExchange(client.LastExchange()); saveErr != nil {
		logger.Warn("persist login exchange", "error", saveErr)
	}
	if err != nil {
		return fmt.Errorf("verify login: %w (run 'nga debug last-response' to see what the forum returned)", err)
	}
	logger.Info("starting", "mode", mode, "uid", user.UID, "username", user.Username)

	sess := session.New(client,
		session.WithLogger(logger),
		session.WithRecorder(st))

	if mode == config.ModeShell {
		return runShell(ctx, sess, client, st)
	}
	return runMenu(ctx, sess)
}

// newClient builds the forum client from the loaded configuration.
func newClient() (*nga.Client, error) {
	client, err := nga.New(nga.Config{
		BaseURL:      cfg.Network.BaseURL,
		Cookie:       cfg.Auth.Cookie,
		HTTPProxy:    cfg.Network.HTTPProxy,
		HTTPSProxy:   cfg.Network.HTTPSProxy,
		Timeout:      time.Duration(cfg.Network.TimeoutSeconds) * time.Second,
		RateLimitQPS: cfg.Network.RateLimitQPS,
		Favorites:    favoriteBoardList(cfg.Favorites),
	}, nga.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return client, nil
}

func runShell(ctx context.Context, sess *session.Session, client *nga.Client, st *store.Store) error {
	hist, err := shell.NewHistory(cfg.Shell.HistorySize, st)
	if err != nil {
		logger.Warn("load history", "error", err)
	}

	printer := render.NewPrinter(os.Stdout, render.Options{
		ShowSignatures: cfg.Display.ShowSignatures,
		Rich:           cfg.Display.RichStyle,
	})
	in := shell.New(sess, printer,
		shell.WithFavorites(&favoriteBoards{cfg: cfg, client: client, session: sess}),
		shell.WithLogger(logger))

	fd := os.Stdin.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return shell.RunLines(ctx, in, hist, os.Stdin, os.Stdout)
	}
	editor := shell.NewEditor(ctx, in, shell.NewCompleter(in, cfg.Shell.CompletionLimit), hist, printer)
	return shell.RunTerminal(ctx, editor, os.Stdin, os.Stdout)
}

func runMenu(ctx context.Context, sess *session.Session) error {
	model := tui.New(ctx, sess, tui.Options{
		Version:        Version,
		ShowSignatures: cfg.Display.ShowSignatures,
		Rich:           cfg.Display.RichStyle,
		Logger:         logger,
		Output:         os.Stdout,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

func init() {
	startCmd.Flags().StringVar(&startMode, "mode", "", "display mode: interactive or shell (default from config)")
	rootCmd.AddCommand(startCmd)
}
