package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/gyokusei/nga-cli/internal/config"
	"github.com/gyokusei/nga-cli/internal/forum"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Edit settings interactively",
	Long: `Edit the settings in config.toml with a series of forms: the login
cookie, favorite boards, proxies and display options.

The cookie comes from a browser logged in to bbs.nga.cn and must contain
ngaPassportUid and ngaPassportCid.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigMenu(cmd.Context(), cmd.OutOrStdout())
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeConfig(cmd.OutOrStdout(), cfg)
	},
}

const (
	actionCookie    = "cookie"
	actionFavorites = "favorites"
	actionProxy     = "proxy"
	actionGeneral   = "general"
	actionShow      = "show"
	actionQuit      = "quit"
)

func runConfigMenu(ctx context.Context, w io.Writer) error {
	for {
		action := actionQuit
		err := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title("nga config").
				Description(cfg.ConfigFilePath()).
				Options(
					huh.NewOption("Set cookie", actionCookie),
					huh.NewOption("Manage favorite boards", actionFavorites),
					huh.NewOption("Proxies", actionProxy),
					huh.NewOption("General options", actionGeneral),
					huh.NewOption("Show configuration", actionShow),
					huh.NewOption("Quit", actionQuit),
				).
				Value(&action),
		)).RunWithContext(ctx)
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		if err != nil {
			return err
		}

		switch action {
		case actionCookie:
			err = editCookie(ctx)
		case actionFavorites:
			err = editFavorites(ctx, w)
		case actionProxy:
			err = editProxies(ctx)
		case actionGeneral:
			err = editGeneral(ctx)
		case actionShow:
			err = writeConfig(w, cfg)
		default:
			return nil
		}
		if errors.Is(err, huh.ErrUserAborted) {
			continue
		}
		if err != nil {
			return err
		}
	}
}

func editCookie(ctx context.Context) error {
	cookie := cfg.Auth.Cookie
	err := huh.NewForm(huh.NewGroup(
		huh.NewText().
			Title("Cookie").
			Description("Copy the Cookie header of a logged-in browser request to bbs.nga.cn").
			Value(&cookie).
			Validate(config.ValidateCookie),
	)).RunWithContext(ctx)
	if err != nil {
		return err
	}
	cfg.Auth.Cookie = strings.TrimSpace(cookie)
	return saveConfig()
}

func editFavorites(ctx context.Context, w io.Writer) error {
	const addNew = "add"
	choice := addNew
	options := []huh.Option[string]{huh.NewOption("Add a board by fid", addNew)}
	for _, f := range cfg.Favorites {
		options = append(options, huh.NewOption(fmt.Sprintf("Remove %s (fid %d)", f.Name, f.FID), strconv.Itoa(f.FID)))
	}
	err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Favorite boards").
			Options(options...).
			Value(&choice),
	)).RunWithContext(ctx)
	if err != nil {
		return err
	}

	if choice != addNew {
		fid, _ := strconv.Atoi(choice)
		if !cfg.RemoveFavorite(fid) {
			return nil
		}
		if err := saveConfig(); err != nil {
			return err
		}
		fmt.Fprintf(w, "removed fid %d\n", fid)
		return nil
	}

	var fidText string
	err = huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Board fid").
			Description("The fid parameter of the board URL, e.g. -7").
			Value(&fidText).
			Validate(func(s string) error {
				_, err := parseFID(s)
				return err
			}),
	)).RunWithContext(ctx)
	if err != nil {
		return err
	}
	fid, _ := parseFID(fidText)

	client, err := newClient()
	if err != nil {
		return err
	}
	favs := &favoriteBoards{cfg: cfg, client: client}
	b, lookupErr := favs.Add(ctx, forum.Board{ID: fid})
	if lookupErr != nil {
		// Offline or logged out: let the user name the board.
		logger.Warn("board lookup failed", "fid", fid, "error", lookupErr)
		name := strconv.Itoa(fid)
		err = huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Board name").
				Description(fmt.Sprintf("Could not look up fid %d: %v", fid, lookupErr)).
				Value(&name),
		)).RunWithContext(ctx)
		if err != nil {
			return err
		}
		if b, err = favs.Add(ctx, forum.Board{ID: fid, Name: name}); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "added %s (fid %d)\n", b.Name, b.ID)
	return nil
}

func editProxies(ctx context.Context) error {
	httpProxy, httpsProxy := cfg.Network.HTTPProxy, cfg.Network.HTTPSProxy
	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("HTTP proxy").
			Description("e.g. http://127.0.0.1:7890 or socks5://127.0.0.1:1080, empty for none").
			Value(&httpProxy).
			Validate(validateProxy),
		huh.NewInput().
			Title("HTTPS proxy").
			Value(&httpsProxy).
			Validate(validateProxy),
	)).RunWithContext(ctx)
	if err != nil {
		return err
	}
	cfg.Network.HTTPProxy = strings.TrimSpace(httpProxy)
	cfg.Network.HTTPSProxy = strings.TrimSpace(httpsProxy)
	return saveConfig()
}

func editGeneral(ctx context.Context) error {
	mode := cfg.Display.Mode
	showSignatures := cfg.Display.ShowSignatures
	rich := cfg.Display.RichStyle
	historySize := strconv.Itoa(cfg.Shell.HistorySize)
	completionLimit := strconv.Itoa(cfg.Shell.CompletionLimit)

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Display mode").
				Options(
					huh.NewOption("Interactive menu", config.ModeInteractive),
					huh.NewOption("Shell", config.ModeShell),
				).
				Value(&mode),
			huh.NewConfirm().
				Title("Show signatures under posts?").
				Value(&showSignatures),
			huh.NewConfirm().
				Title("Use colors?").
				Value(&rich),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Shell history size").
				Value(&historySize).
				Validate(validatePositive),
			huh.NewInput().
				Title("Completion candidate limit").
				Value(&completionLimit).
				Validate(validatePositive),
		),
	).RunWithContext(ctx)
	if err != nil {
		return err
	}

	cfg.Display.Mode = mode
	cfg.Display.ShowSignatures = showSignatures
	cfg.Display.RichStyle = rich
	cfg.Shell.HistorySize, _ = strconv.Atoi(strings.TrimSpace(historySize))
	cfg.Shell.CompletionLimit, _ = strconv.Atoi(strings.TrimSpace(completionLimit))
	return saveConfig()
}

func saveConfig() error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	logger.Info("config saved", "path", cfg.ConfigFilePath())
	return nil
}

// writeConfig prints c as TOML with the cookie masked.
func writeConfig(w io.Writer, c *config.Config) error {
	shown := *c
	shown.Auth.Cookie = maskCookie(c.Auth.Cookie)
	fmt.Fprintf(w, "# %s\n", c.ConfigFilePath())
	return toml.NewEncoder(w).Encode(shown)
}

// maskCookie hides every cookie value except the user id.
func maskCookie(raw string) string {
	parts := config.ParseCookie(raw)
	if len(parts) == 0 {
		return ""
	}
	names := make([]string, 0, len(parts))
	for name := range parts {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		value := "***"
		if name == "ngaPassportUid" {
			value = parts[name]
		}
		names[i] = name + "=" + value
	}
	return strings.Join(names, "; ")
}

func parseFID(s string) (int, error) {
	fid, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%q is not a board id", s)
	}
	if fid == 0 {
		return 0, errors.New("fid must not be 0")
	}
	return fid, nil
}

func validateProxy(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return fmt.Errorf("proxy scheme must be http, https or socks5, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("proxy URL needs a host")
	}
	return nil
}

func validatePositive(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fmt.Errorf("%q is not a positive number", s)
	}
	return nil
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
