package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gyokusei/nga-cli/internal/config"
	"github.com/gyokusei/nga-cli/internal/fileutil"
)

var (
	cfgFile string
	homeDir string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
	logFile io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "nga",
	Short: "Browse the NGA forum from the terminal",
	Long: `nga is a terminal client for the NGA forum (bbs.nga.cn). It lists your
favorite boards, their threads and the posts of a thread, either as a
full-screen menu or as a shell with ls, cd and cat.

Run 'nga config' first to store the browser cookie of a logged-in session.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		if cmd.Name() == "version" {
			return nil
		}

		// Load config (--home is passed through so it influences
		// where config.toml is loaded from, like NGA_HOME).
		var err error
		cfg, err = config.Load(cfgFile, homeDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// Ensure home directory exists on first use
		if err := cfg.EnsureHomeDir(); err != nil {
			return fmt.Errorf("create data directory %s: %w", cfg.HomeDir, err)
		}

		logger = newLogger(cfg.LogFilePath(), verbose)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logFile != nil {
			return logFile.Close()
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart(cmd.Context(), "")
	},
}

// newLogger writes to the log file, since the front-ends own the terminal.
// Every record carries the id of this run.
func newLogger(path string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	f, err := fileutil.SecureOpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err == nil {
		w = f
		logFile = f
	}
	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})).With("session", uuid.NewString())
	if err != nil {
		l.Warn("cannot open log file, logging to stderr", "path", path, "error", err)
	}
	return l
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/nga-cli/config.toml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "home directory (overrides NGA_HOME)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
